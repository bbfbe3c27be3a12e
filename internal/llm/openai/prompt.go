package openai

import (
	"strings"

	"github.com/hanzhifeng/quizbank/internal/llm"
)

// maxPromptOCRRunes caps the OCR text sent to the model. Screenshot OCR
// rarely exceeds this; anything longer is chrome noise.
const maxPromptOCRRunes = 3000

func buildSystemPrompt(req llm.ExtractRequest) string {
	if req.IncludeClassification {
		return "你是一个专业的题目提取和分析助手，擅长从OCR文字中准确提取完整的题目和选项，并进行题目分类和初步答案分析。只返回JSON格式。"
	}
	return "你是一个专业的题目提取助手，擅长从OCR文字中准确提取完整的题目和选项。只返回JSON格式。"
}

func buildUserPrompt(ocrText, typeHint string, classify bool) string {
	var b strings.Builder
	if classify {
		b.WriteString("从以下OCR识别文字中提取题目和选项，并进行分类和初步答案分析，忽略所有界面元素。\n\n")
	} else {
		b.WriteString("从以下OCR识别文字中提取题目和选项，忽略所有界面元素。\n\n")
	}
	b.WriteString("OCR文字：\n")
	b.WriteString(ocrText)
	b.WriteString("\n\n要求：\n")
	if classify {
		b.WriteString("1. 提取完整的题目内容和选项\n")
		b.WriteString("2. 题干必须完整，包括所有段落内容\n")
		b.WriteString("3. 选项必须以\"A. \"、\"B. \"、\"C. \"、\"D. \"开头\n")
		b.WriteString("4. 判断题目类型：行测(言语理解、数量关系、判断推理、资料分析、常识判断) 或 申论\n")
		b.WriteString("5. 给出初步答案（A/B/C/D）和简要理由\n")
		b.WriteString("6. 不要包含界面元素\n")
	} else {
		b.WriteString("1. 只提取题目内容和选项\n")
		b.WriteString("2. 题干必须完整，包括所有段落内容\n")
		b.WriteString("3. 选项必须以\"A. \"、\"B. \"、\"C. \"、\"D. \"开头\n")
		b.WriteString("4. 不要包含界面元素\n")
	}
	if hint := strings.TrimSpace(typeHint); hint != "" {
		b.WriteString("题目类型参考：")
		b.WriteString(hint)
		b.WriteString("\n")
	}
	b.WriteString("\n返回JSON格式（只返回JSON，不要其他文字）。")
	return b.String()
}

func clipRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
