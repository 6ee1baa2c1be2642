package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	internaldb "quizhub/internal/db"

	"github.com/xuri/excelize/v2"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:report_%s_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name(), time.Now().UnixNano())
	conn, err := internaldb.Open(context.Background(), internaldb.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func seedUser(t *testing.T, conn *sql.DB, username string) int64 {
	t.Helper()
	var id int64
	err := conn.QueryRow(`
		INSERT INTO users (username, email, password_hash, is_admin, is_active, created_at)
		VALUES ($1, $2, 'x', FALSE, TRUE, $3)
		RETURNING id
	`, username, username+"@example.test", time.Now().UTC()).Scan(&id)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func seedQuiz(t *testing.T, conn *sql.DB, title string) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := conn.QueryRow(`
		INSERT INTO quizzes (title, description, questions_count, randomize_questions, randomize_options, is_active, created_at, updated_at)
		VALUES ($1, '', 5, TRUE, TRUE, TRUE, $2, $3)
		RETURNING id
	`, title, now, now).Scan(&id)
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return id
}

func seedAttempt(t *testing.T, conn *sql.DB, quizID, userID int64, score *float64) {
	t.Helper()
	now := time.Now().UTC()
	var err error
	if score != nil {
		_, err = conn.Exec(`
			INSERT INTO attempts (quiz_id, user_id, question_order, score, is_completed, start_time, submit_time)
			VALUES ($1, $2, '[]', $3, TRUE, $4, $5)
		`, quizID, userID, *score, now, now)
	} else {
		_, err = conn.Exec(`
			INSERT INTO attempts (quiz_id, user_id, question_order, is_completed, start_time)
			VALUES ($1, $2, '[]', FALSE, $3)
		`, quizID, userID, now)
	}
	if err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
}

func scoreOf(v float64) *float64 { return &v }

func TestSummaryByQuiz(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()

	quizID := seedQuiz(t, conn, "History")
	alice := seedUser(t, conn, "alice")
	bob := seedUser(t, conn, "bob")
	carol := seedUser(t, conn, "carol")

	seedAttempt(t, conn, quizID, alice, scoreOf(100))
	seedAttempt(t, conn, quizID, bob, scoreOf(40))
	// open attempt must not count
	seedAttempt(t, conn, quizID, carol, nil)

	summary, err := svc.SummaryByQuiz(ctx, quizID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.QuizTitle != "History" {
		t.Fatalf("expected quiz title carried, got %q", summary.QuizTitle)
	}
	if summary.Participants != 2 {
		t.Fatalf("expected 2 completed participants, got %d", summary.Participants)
	}
	if math.Abs(summary.AverageScore-70) > 1e-9 {
		t.Fatalf("expected average 70, got %.2f", summary.AverageScore)
	}
	if summary.HighestScore != 100 || summary.LowestScore != 40 {
		t.Fatalf("expected high 100 low 40, got %.1f/%.1f", summary.HighestScore, summary.LowestScore)
	}
}

func TestSummaryByQuizEmpty(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()

	quizID := seedQuiz(t, conn, "Unvisited")

	summary, err := svc.SummaryByQuiz(ctx, quizID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Participants != 0 || summary.AverageScore != 0 {
		t.Fatalf("expected zeroed summary, got %+v", summary)
	}

	if _, err := svc.SummaryByQuiz(ctx, 9999); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestExportAttemptsExcel(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()

	quizID := seedQuiz(t, conn, "Geography")
	alice := seedUser(t, conn, "alice")
	bob := seedUser(t, conn, "bob")

	seedAttempt(t, conn, quizID, alice, scoreOf(75))
	seedAttempt(t, conn, quizID, bob, scoreOf(50))
	// open attempts stay out of the export
	seedAttempt(t, conn, quizID, seedUser(t, conn, "carol"), nil)

	var buf bytes.Buffer
	if err := svc.ExportAttemptsExcel(ctx, quizID, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open exported workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 attempts, got %d rows", len(rows))
	}
	if rows[0][0] != "attempt_id" || rows[0][2] != "username" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][2] != "alice" || rows[2][2] != "bob" {
		t.Fatalf("unexpected usernames: %v %v", rows[1], rows[2])
	}
}

func TestExportAttemptsExcelMissingQuiz(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(conn)

	var buf bytes.Buffer
	if err := svc.ExportAttemptsExcel(context.Background(), 9999, &buf); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("expected nothing written for a missing quiz")
	}
}
