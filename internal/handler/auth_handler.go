package handler

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"golang.org/x/crypto/bcrypt"
)

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login 处理用户登录请求，校验通过后把用户写入会话
func Login(c *gin.Context) {
	var payload loginPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	var user db.User
	if err := db.DB.Where("username = ?", payload.Username).First(&user).Error; err != nil {
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(payload.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"level":    user.Level,
		},
	})
}

// Logout 处理用户登出
func Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AuthRequired 是一个简单的认证中间件，身份解析由会话层完成
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get("user_id")
		if userID == nil {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentUserID 从会话中取出已认证的用户 ID，未登录返回 0。
func currentUserID(c *gin.Context) uint {
	session := sessions.Default(c)
	raw := session.Get("user_id")
	if raw == nil {
		return 0
	}
	if id, ok := raw.(uint); ok {
		return id
	}
	return 0
}
