package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuestionType(t *testing.T) {
	tests := []struct {
		label string
		want  QuestionType
	}{
		{"VERBAL", QuestionTypeVerbal},
		{" essay ", QuestionTypeEssay},
		{"行测-言语理解", QuestionTypeVerbal},
		{"行测-数量关系", QuestionTypeQuantitative},
		{"行测-判断推理", QuestionTypeJudgment},
		{"行测-资料分析", QuestionTypeDataAnalysis},
		{"行测-常识判断", QuestionTypeCommonSense},
		{"申论", QuestionTypeEssay},
		{"别的什么", QuestionTypeText},
		{"", QuestionTypeText},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeQuestionType(tt.label), "label %q", tt.label)
	}
}

func TestIsAllowedImage(t *testing.T) {
	assert.True(t, IsAllowedImage(".PNG"))
	assert.True(t, IsAllowedImage("jpg"))
	assert.False(t, IsAllowedImage(".gif"))
	assert.False(t, IsAllowedImage(""))
}
