package service

import (
	"fmt"
	"regexp"
	"strings"
)

// 反思里嵌入的 Markdown 图片链接往往很长，原样拼进 Prompt 会浪费大量 Token。
// 调用模型前先把链接压缩成短占位符，拿到回复后再还原。
var markdownImageRe = regexp.MustCompile(`!\[[^\]]*]\((<[^>]+>|[^)\s]+)([^)]*)\)`)

type promptImageEntry struct {
	placeholder string
	original    string
}

// promptImageSet 记录一次压缩产生的占位符与原始链接的对应关系。
type promptImageSet struct {
	entries []promptImageEntry
}

func compressMarkdownImageURLs(input string) (string, *promptImageSet) {
	set := &promptImageSet{}
	if !markdownImageRe.MatchString(input) {
		return input, set
	}

	compressed := markdownImageRe.ReplaceAllStringFunc(input, func(match string) string {
		groups := markdownImageRe.FindStringSubmatch(match)
		if len(groups) < 3 {
			return match
		}

		original := groups[1]
		placeholder := fmt.Sprintf("image://asset-%d", len(set.entries)+1)
		// 原链接带尖括号时占位符也带上，保持 Markdown 结构不变
		if strings.HasPrefix(original, "<") && strings.HasSuffix(original, ">") {
			placeholder = "<" + placeholder + ">"
		}

		set.entries = append(set.entries, promptImageEntry{placeholder: placeholder, original: original})
		return strings.Replace(match, original, placeholder, 1)
	})

	return compressed, set
}

// Count 返回被压缩的图片数量。
func (p *promptImageSet) Count() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Restore 把占位符换回原始链接。模型可能擅自增删尖括号，两种形态都要处理。
func (p *promptImageSet) Restore(input string) string {
	if p == nil || len(p.entries) == 0 {
		return input
	}

	output := input
	for _, entry := range p.entries {
		output = strings.ReplaceAll(output, entry.placeholder, entry.original)

		bare := strings.TrimSuffix(strings.TrimPrefix(entry.placeholder, "<"), ">")
		bareOriginal := strings.TrimSuffix(strings.TrimPrefix(entry.original, "<"), ">")
		if bare != entry.placeholder {
			// 带括号的占位符：模型去掉括号时按裸链接还原
			output = strings.ReplaceAll(output, bare, bareOriginal)
			continue
		}
		output = strings.ReplaceAll(output, "<"+entry.placeholder+">", entry.original)
	}
	return output
}
