package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

var ErrQuizNotFound = errors.New("quiz not found")

type Service struct {
	db *sql.DB
}

// QuizSummary aggregates completed attempts only; open attempts have no
// score and would skew the averages.
type QuizSummary struct {
	QuizID       int64   `json:"quiz_id"`
	QuizTitle    string  `json:"quiz_title"`
	Participants int     `json:"participants"`
	AverageScore float64 `json:"average_score"`
	HighestScore float64 `json:"highest_score"`
	LowestScore  float64 `json:"lowest_score"`
}

type attemptRow struct {
	AttemptID  int64
	QuizTitle  string
	Username   string
	Score      sql.NullFloat64
	StartTime  time.Time
	SubmitTime sql.NullTime
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) SummaryByQuiz(ctx context.Context, quizID int64) (*QuizSummary, error) {
	var title string
	if err := s.db.QueryRowContext(ctx, `
		SELECT title FROM quizzes WHERE id = $1
	`, quizID).Scan(&title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	summary := &QuizSummary{QuizID: quizID, QuizTitle: title}

	var avg, max, min sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(score), MAX(score), MIN(score)
		FROM attempts
		WHERE quiz_id = $1 AND is_completed = TRUE
	`, quizID).Scan(&summary.Participants, &avg, &max, &min)
	if err != nil {
		return nil, fmt.Errorf("aggregate attempts: %w", err)
	}
	if avg.Valid {
		summary.AverageScore = avg.Float64
	}
	if max.Valid {
		summary.HighestScore = max.Float64
	}
	if min.Valid {
		summary.LowestScore = min.Float64
	}
	return summary, nil
}

// ExportAttemptsExcel writes every completed attempt for the quiz as an
// xlsx workbook, one row per attempt.
func (s *Service) ExportAttemptsExcel(ctx context.Context, quizID int64, w io.Writer) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)
	`, quizID).Scan(&exists); err != nil {
		return fmt.Errorf("check quiz: %w", err)
	}
	if !exists {
		return ErrQuizNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, q.title, u.username, a.score, a.start_time, a.submit_time
		FROM attempts a
		JOIN quizzes q ON q.id = a.quiz_id
		JOIN users u ON u.id = a.user_id
		WHERE a.quiz_id = $1 AND a.is_completed = TRUE
		ORDER BY a.id
	`, quizID)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	header := []interface{}{"attempt_id", "quiz", "username", "score", "start_time", "submit_time"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rowNo := 2
	for rows.Next() {
		var rec attemptRow
		if err := rows.Scan(&rec.AttemptID, &rec.QuizTitle, &rec.Username, &rec.Score, &rec.StartTime, &rec.SubmitTime); err != nil {
			return fmt.Errorf("scan attempt: %w", err)
		}

		score := 0.0
		if rec.Score.Valid {
			score = rec.Score.Float64
		}
		submitTime := ""
		if rec.SubmitTime.Valid {
			submitTime = rec.SubmitTime.Time.UTC().Format(time.RFC3339)
		}

		cells := []interface{}{
			rec.AttemptID,
			rec.QuizTitle,
			rec.Username,
			score,
			rec.StartTime.UTC().Format(time.RFC3339),
			submitTime,
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", rowNo), &cells); err != nil {
			return fmt.Errorf("write row %d: %w", rowNo, err)
		}
		rowNo++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate attempts: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("serialize workbook: %w", err)
	}
	return nil
}
