package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hanzhifeng/quizbank/internal/batch"
)

// Service produces XLSX bytes for batch results.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BatchResultXLSX renders one batch run as a workbook: one row per item in
// request order, plus a summary sheet with the run statistics.
func (s *Service) BatchResultXLSX(br *batch.BatchResult) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Questions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"#",
		"File",
		"Status",
		"Question",
		"Options",
		"Type",
		"Answer",
		"Reason",
		"Duplicate Of",
		"Similarity",
		"Tokens",
		"Cost",
		"Time (ms)",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for i := range br.Results {
		r := &br.Results[i]

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.Index+1)
		write(2, r.FileName)
		write(3, statusLabel(r))
		write(4, truncate(r.Question.QuestionText, 500))
		write(5, strings.Join(r.Question.Options, "\n"))
		write(6, r.Question.QuestionType)
		write(7, r.Question.PreliminaryAnswer)
		write(8, truncate(r.Question.AnswerReason, 200))
		switch {
		case r.Duplicate:
			write(9, r.MatchedID.String())
			write(10, fmt.Sprintf("%.3f", r.Similarity))
		case r.BatchDuplicate:
			write(9, fmt.Sprintf("item %d", r.DuplicateOfIndex+1))
			write(10, fmt.Sprintf("%.3f", r.Similarity))
		}
		write(11, r.Usage.Total())
		write(12, r.Cost)
		write(13, r.TotalTime.Milliseconds())
		if !r.Success {
			write(14, fmt.Sprintf("%s: %s", r.ErrKind, truncate(r.ErrMessage, 200)))
		}

		row++
	}

	_ = f.SetColWidth(sheet, "B", "B", 24) // file
	_ = f.SetColWidth(sheet, "D", "D", 60) // question
	_ = f.SetColWidth(sheet, "E", "E", 44) // options
	_ = f.SetColWidth(sheet, "H", "H", 36) // reason
	_ = f.SetColWidth(sheet, "I", "I", 38) // duplicate of
	_ = f.SetColWidth(sheet, "N", "N", 40) // error

	if err := writeSummarySheet(f, br); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"batch_id", br.BatchID.String(),
		"rows", len(br.Results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, br *batch.BatchResult) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][2]any{
		{"Batch ID", br.BatchID.String()},
		{"Total", br.Stats.Total},
		{"Succeeded", br.Stats.Succeeded},
		{"Failed", br.Stats.Failed},
		{"Duplicates", br.Stats.Duplicates},
		{"Batch Duplicates", br.Stats.BatchDuplicates},
		{"Total Tokens", br.Stats.TotalTokens},
		{"Total Cost", br.Stats.TotalCost},
		{"Total Time (ms)", br.Stats.TotalTime.Milliseconds()},
		{"Avg Time (ms)", br.Stats.AvgTime.Milliseconds()},
	}
	for i, kv := range rows {
		keyCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valCell, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := f.SetCellValue(sheet, keyCell, kv[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, valCell, kv[1]); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "B", 40)
	return nil
}

func statusLabel(r *batch.Result) string {
	switch {
	case r.Duplicate:
		return "DUPLICATE"
	case r.BatchDuplicate:
		return "BATCH_DUPLICATE"
	case r.Success:
		return "OK"
	default:
		return "FAILED"
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
