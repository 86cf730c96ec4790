package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// respondError 以统一结构返回业务错误。
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// bindJSON 解析请求体，失败时直接响应 400 并返回 false。
func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// parseUintParam 解析路径中的数字 ID。
func parseUintParam(c *gin.Context, key string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(key), 10, 32)
	return uint(id), err
}
