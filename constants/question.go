package constants

import "strings"

// QuestionType is the exam taxonomy label attached to an extracted question.
type QuestionType string

// Stable values (store these exact strings in DB).
const (
	QuestionTypeVerbal       QuestionType = "VERBAL"        // 言语理解
	QuestionTypeQuantitative QuestionType = "QUANTITATIVE"  // 数量关系
	QuestionTypeJudgment     QuestionType = "JUDGMENT"      // 判断推理
	QuestionTypeDataAnalysis QuestionType = "DATA_ANALYSIS" // 资料分析
	QuestionTypeCommonSense  QuestionType = "COMMON_SENSE"  // 常识判断
	QuestionTypeEssay        QuestionType = "ESSAY"         // 申论
	QuestionTypeText         QuestionType = "TEXT"          // fallback for unclassified
)

var allQuestionTypes = []QuestionType{
	QuestionTypeVerbal,
	QuestionTypeQuantitative,
	QuestionTypeJudgment,
	QuestionTypeDataAnalysis,
	QuestionTypeCommonSense,
	QuestionTypeEssay,
	QuestionTypeText,
}

// AllQuestionTypes returns the taxonomy as strings, e.g. for an LLM enum constraint.
func AllQuestionTypes() []string {
	out := make([]string, 0, len(allQuestionTypes))
	for _, t := range allQuestionTypes {
		out = append(out, string(t))
	}
	return out
}

// chineseTypeLabels maps the taxonomy words the model emits (e.g.
// "行测-言语理解") onto stable values. Matched by substring; the labels are
// mutually exclusive.
var chineseTypeLabels = map[string]QuestionType{
	"言语理解": QuestionTypeVerbal,
	"数量关系": QuestionTypeQuantitative,
	"判断推理": QuestionTypeJudgment,
	"资料分析": QuestionTypeDataAnalysis,
	"常识判断": QuestionTypeCommonSense,
	"申论":   QuestionTypeEssay,
}

// NormalizeQuestionType maps a free-form label to a known QuestionType,
// falling back to TEXT for anything unrecognized.
func NormalizeQuestionType(label string) QuestionType {
	s := strings.ToUpper(strings.TrimSpace(label))
	for _, t := range allQuestionTypes {
		if s == string(t) {
			return t
		}
	}
	for k, t := range chineseTypeLabels {
		if strings.Contains(label, k) {
			return t
		}
	}
	return QuestionTypeText
}
