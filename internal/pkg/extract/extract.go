package extract

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// 提取失败以哨兵前缀字符串返回而不是 error，
// 调用方用 IsError 判断；格式固定为 "Error reading <type>: <detail>"
const errorPrefix = "Error reading"

// Extractor 把上传文件转成纯文本
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract 提取文件文本；失败时返回哨兵字符串
func (e *Extractor) Extract(path, fileType string) string {
	ft := strings.ToLower(strings.TrimPrefix(fileType, "."))
	switch ft {
	case "txt", "md", "text":
		return e.extractPlain(path, "text file")
	case "pdf":
		return e.extractPDF(path)
	case "docx", "doc":
		return Errorf(ft+" file", "no converter available")
	default:
		return Errorf(ft+" file", "unsupported file type")
	}
}

func (e *Extractor) extractPlain(path, label string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return Errorf(label, "%v", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return Errorf(label, "file is empty")
	}
	return text
}

// extractPDF 依赖外部的 pdftotext 工具
func (e *Extractor) extractPDF(path string) string {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return Errorf("pdf file", "pdftotext not installed")
	}

	var out bytes.Buffer
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return Errorf("pdf file", "%v", err)
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return Errorf("pdf file", "no extractable text")
	}
	return text
}

// Errorf 构造哨兵错误字符串
func Errorf(label, format string, args ...interface{}) string {
	return fmt.Sprintf("%s %s: %s", errorPrefix, label, fmt.Sprintf(format, args...))
}

// IsError 判断提取结果是否为哨兵错误
func IsError(s string) bool {
	return strings.HasPrefix(s, errorPrefix)
}
