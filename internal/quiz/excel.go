package quiz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

type QuestionImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type QuestionImportReport struct {
	TotalRows   int                      `json:"total_rows"`
	SuccessRows int                      `json:"success_rows"`
	FailedRows  int                      `json:"failed_rows"`
	Errors      []QuestionImportRowError `json:"errors"`
}

// ImportQuestionsExcel bulk-creates questions for a quiz from a spreadsheet.
// Expected header row: content, correct_answer, display_order, then any
// number of option_N columns read left to right. correct_answer is the
// zero-based index into the non-empty options. Rows with duplicate option
// text are rejected because shuffled views remap the correct index by
// option value.
func (s *Service) ImportQuestionsExcel(ctx context.Context, quizID int64, r io.Reader) (*QuestionImportReport, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)
	`, quizID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check quiz: %w", err)
	}
	if !exists {
		return nil, ErrQuizNotFound
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel sheet is empty")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows found")
	}

	header := map[string]int{}
	optionCols := make([]int, 0)
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		header[name] = i
		if strings.HasPrefix(name, "option") {
			optionCols = append(optionCols, i)
		}
	}
	for _, col := range []string{"content", "correct_answer"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}
	if len(optionCols) < 2 {
		return nil, errors.New("at least 2 option columns are required")
	}

	report := &QuestionImportReport{Errors: make([]QuestionImportRowError, 0)}
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		report.TotalRows++

		get := func(idx int) string {
			if idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		content := get(header["content"])
		if content == "" {
			report.fail(rowNo, "content is required")
			continue
		}

		options := make([]string, 0, len(optionCols))
		for _, col := range optionCols {
			if v := get(col); v != "" {
				options = append(options, v)
			}
		}
		if len(options) < 2 {
			report.fail(rowNo, "at least 2 options are required")
			continue
		}
		if dup := firstDuplicate(options); dup != "" {
			report.fail(rowNo, fmt.Sprintf("duplicate option text %q", dup))
			continue
		}

		correct, err := strconv.Atoi(get(header["correct_answer"]))
		if err != nil || correct < 0 || correct >= len(options) {
			report.fail(rowNo, "correct_answer index out of range")
			continue
		}

		displayOrder := 0
		if idx, ok := header["display_order"]; ok {
			if v := get(idx); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					displayOrder = n
				}
			}
		}

		if _, err := s.CreateQuestion(ctx, CreateQuestionInput{
			QuizID:        quizID,
			Content:       content,
			Options:       options,
			CorrectAnswer: correct,
			DisplayOrder:  displayOrder,
		}); err != nil {
			report.fail(rowNo, err.Error())
			continue
		}

		report.SuccessRows++
	}

	return report, nil
}

func (r *QuestionImportReport) fail(rowNo int, msg string) {
	r.FailedRows++
	r.Errors = append(r.Errors, QuestionImportRowError{Row: rowNo, Error: msg})
}

func firstDuplicate(values []string) string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return v
		}
		seen[v] = struct{}{}
	}
	return ""
}
