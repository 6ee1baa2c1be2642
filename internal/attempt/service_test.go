package attempt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	internaldb "quizhub/internal/db"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:attempt_%s_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name(), time.Now().UnixNano())
	conn, err := internaldb.Open(context.Background(), internaldb.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTestService(t *testing.T, conn *sql.DB) *Service {
	t.Helper()
	return NewServiceWithSource(conn, rand.NewSource(42))
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

func seedQuiz(t *testing.T, conn *sql.DB, count int, randQ, randO, active bool) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := conn.QueryRow(`
		INSERT INTO quizzes (title, description, questions_count, randomize_questions, randomize_options, is_active, created_at, updated_at)
		VALUES ('Test Quiz', '', $1, $2, $3, $4, $5, $6)
		RETURNING id
	`, count, randQ, randO, active, now, now).Scan(&id)
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return id
}

func seedQuestion(t *testing.T, conn *sql.DB, quizID int64, content string, correct, order int) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := conn.QueryRow(`
		INSERT INTO questions (quiz_id, content, options, correct_answer, display_order, is_active, created_at, updated_at)
		VALUES ($1, $2, '["alpha","beta","gamma","delta"]', $3, $4, TRUE, $5, $6)
		RETURNING id
	`, quizID, content, correct, order, now, now).Scan(&id)
	if err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return id
}

func seedQuestionBank(t *testing.T, conn *sql.DB, quizID int64, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, seedQuestion(t, conn, quizID, fmt.Sprintf("question %d", i+1), 0, i+1))
	}
	return ids
}

func TestGetOrCreateAttemptIsIdempotent(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 5, true, false, true)
	seedQuestionBank(t, conn, quizID, 10)

	first, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if len(first.QuestionOrder) != 5 {
		t.Fatalf("expected order of 5 questions, got %d", len(first.QuestionOrder))
	}

	second, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("reopen attempt: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected attempt %d to be reused, got %d", first.ID, second.ID)
	}
	for i := range first.QuestionOrder {
		if second.QuestionOrder[i] != first.QuestionOrder[i] {
			t.Fatal("question order changed between calls")
		}
	}
}

func TestGetOrCreateAttemptWithoutRandomizationTakesFirstN(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 3, false, false, true)
	questionIDs := seedQuestionBank(t, conn, quizID, 8)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if len(att.QuestionOrder) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(att.QuestionOrder))
	}
	for i := 0; i < 3; i++ {
		if att.QuestionOrder[i] != questionIDs[i] {
			t.Fatalf("expected display order preserved: got %v", att.QuestionOrder)
		}
	}
}

func TestGetOrCreateAttemptSamplesFromBank(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 4, true, false, true)
	questionIDs := seedQuestionBank(t, conn, quizID, 12)

	valid := make(map[int64]bool, len(questionIDs))
	for _, id := range questionIDs {
		valid[id] = true
	}

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if len(att.QuestionOrder) != 4 {
		t.Fatalf("expected 4 sampled questions, got %d", len(att.QuestionOrder))
	}
	seen := make(map[int64]bool)
	for _, id := range att.QuestionOrder {
		if !valid[id] {
			t.Fatalf("sampled question %d not in bank", id)
		}
		if seen[id] {
			t.Fatalf("question %d sampled twice", id)
		}
		seen[id] = true
	}
}

func TestGetOrCreateAttemptClampsToBankSize(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 10, false, false, true)
	seedQuestionBank(t, conn, quizID, 4)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if len(att.QuestionOrder) != 4 {
		t.Fatalf("expected all 4 bank questions, got %d", len(att.QuestionOrder))
	}
}

func TestGetOrCreateAttemptRejectsInactiveQuiz(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 5, true, false, false)
	seedQuestionBank(t, conn, quizID, 5)

	if _, err := svc.GetOrCreateAttempt(ctx, quizID, userID); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}

	if _, err := svc.GetOrCreateAttempt(ctx, 9999, userID); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound for missing quiz, got %v", err)
	}
}

func TestGetPagePartitionsQuestionOrder(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 10, false, false, true)
	seedQuestionBank(t, conn, quizID, 10)

	seen := make(map[int64]bool)
	total := 0
	for page := 1; page <= 4; page++ {
		view, err := svc.GetPage(ctx, quizID, userID, page)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if view.TotalPages != 4 {
			t.Fatalf("expected 4 total pages, got %d", view.TotalPages)
		}
		if view.PageSize != 3 {
			t.Fatalf("expected page size 3, got %d", view.PageSize)
		}
		for _, q := range view.Questions {
			if seen[q.QuestionID] {
				t.Fatalf("question %d appears on two pages", q.QuestionID)
			}
			seen[q.QuestionID] = true
		}
		total += len(view.Questions)
	}
	if total != 10 {
		t.Fatalf("pages cover %d questions, want 10", total)
	}
}

func TestGetPageClampsPageNumber(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 3, false, false, true)
	seedQuestionBank(t, conn, quizID, 3)

	over, err := svc.GetPage(ctx, quizID, userID, 99)
	if err != nil {
		t.Fatalf("page overflow: %v", err)
	}
	if over.Page != 3 {
		t.Fatalf("expected clamp to last page 3, got %d", over.Page)
	}

	under, err := svc.GetPage(ctx, quizID, userID, 0)
	if err != nil {
		t.Fatalf("page underflow: %v", err)
	}
	if under.Page != 1 {
		t.Fatalf("expected clamp to page 1, got %d", under.Page)
	}
}

func TestGetPageEmptyQuiz(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 0, false, false, true)

	view, err := svc.GetPage(ctx, quizID, userID, 5)
	if err != nil {
		t.Fatalf("page on empty quiz: %v", err)
	}
	if view.Page != 1 || view.TotalPages != 0 || len(view.Questions) != 0 {
		t.Fatalf("expected empty page 1, got page=%d total=%d questions=%d",
			view.Page, view.TotalPages, len(view.Questions))
	}
}

func TestGetPageSkipsDeletedQuestions(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	questionIDs := seedQuestionBank(t, conn, quizID, 2)

	if _, err := svc.GetOrCreateAttempt(ctx, quizID, userID); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if _, err := conn.Exec(`DELETE FROM questions WHERE id = $1`, questionIDs[0]); err != nil {
		t.Fatalf("delete question: %v", err)
	}

	view, err := svc.GetPage(ctx, quizID, userID, 1)
	if err != nil {
		t.Fatalf("page after delete: %v", err)
	}
	if len(view.Questions) != 1 {
		t.Fatalf("expected deleted question skipped, got %d questions", len(view.Questions))
	}
	if view.Questions[0].QuestionID != questionIDs[1] {
		t.Fatalf("expected surviving question %d, got %d", questionIDs[1], view.Questions[0].QuestionID)
	}
}

func TestGetPageAttachesSavedSelections(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	questionIDs := seedQuestionBank(t, conn, quizID, 2)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	sel := 2
	if err := svc.SaveProgress(ctx, att.ID, userID, []AnswerInput{
		{QuestionID: questionIDs[0], SelectedOption: &sel},
	}); err != nil {
		t.Fatalf("save progress: %v", err)
	}

	view, err := svc.GetPage(ctx, quizID, userID, 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	var found *QuestionView
	for i := range view.Questions {
		if view.Questions[i].QuestionID == questionIDs[0] {
			found = &view.Questions[i]
		}
	}
	if found == nil {
		t.Fatal("saved question missing from page")
	}
	if found.SelectedOption == nil || *found.SelectedOption != 2 {
		t.Fatalf("expected saved selection 2, got %v", found.SelectedOption)
	}
}

func TestSaveProgressLeavesAnswersUngraded(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	questionIDs := seedQuestionBank(t, conn, quizID, 2)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	sel := 0
	if err := svc.SaveProgress(ctx, att.ID, userID, []AnswerInput{
		{QuestionID: questionIDs[0], SelectedOption: &sel},
	}); err != nil {
		t.Fatalf("save progress: %v", err)
	}

	var isCorrect sql.NullBool
	var isCompleted bool
	if err := conn.QueryRow(`
		SELECT aa.is_correct, a.is_completed
		FROM attempt_answers aa JOIN attempts a ON a.id = aa.attempt_id
		WHERE aa.attempt_id = $1
	`, att.ID).Scan(&isCorrect, &isCompleted); err != nil {
		t.Fatalf("read saved answer: %v", err)
	}
	if isCorrect.Valid {
		t.Fatal("saved answer must stay ungraded")
	}
	if isCompleted {
		t.Fatal("save must not seal the attempt")
	}
}

func TestSaveProgressReplacesWholesale(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 3, false, false, true)
	questionIDs := seedQuestionBank(t, conn, quizID, 3)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	a, b := 0, 1
	if err := svc.SaveProgress(ctx, att.ID, userID, []AnswerInput{
		{QuestionID: questionIDs[0], SelectedOption: &a},
		{QuestionID: questionIDs[1], SelectedOption: &a},
	}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := svc.SaveProgress(ctx, att.ID, userID, []AnswerInput{
		{QuestionID: questionIDs[2], SelectedOption: &b},
	}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM attempt_answers WHERE attempt_id = $1`, att.ID).Scan(&count); err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the later set to fully replace the earlier, got %d rows", count)
	}
}

func TestSubmitAnswersScoring(t *testing.T) {
	correct, wrong := 0, 3

	tests := []struct {
		name      string
		answers   func(ids []int64) []AnswerInput
		wantScore float64
	}{
		{
			name: "all correct",
			answers: func(ids []int64) []AnswerInput {
				return []AnswerInput{
					{QuestionID: ids[0], SelectedOption: &correct},
					{QuestionID: ids[1], SelectedOption: &correct},
					{QuestionID: ids[2], SelectedOption: &correct},
				}
			},
			wantScore: 100,
		},
		{
			name: "all wrong",
			answers: func(ids []int64) []AnswerInput {
				return []AnswerInput{
					{QuestionID: ids[0], SelectedOption: &wrong},
					{QuestionID: ids[1], SelectedOption: &wrong},
					{QuestionID: ids[2], SelectedOption: &wrong},
				}
			},
			wantScore: 0,
		},
		{
			name: "one of three",
			answers: func(ids []int64) []AnswerInput {
				return []AnswerInput{
					{QuestionID: ids[0], SelectedOption: &correct},
				}
			},
			wantScore: 100.0 / 3.0,
		},
		{
			name: "nothing answered",
			answers: func(ids []int64) []AnswerInput {
				return nil
			},
			wantScore: 0,
		},
		{
			name: "nil selection counts as wrong",
			answers: func(ids []int64) []AnswerInput {
				return []AnswerInput{
					{QuestionID: ids[0], SelectedOption: nil},
					{QuestionID: ids[1], SelectedOption: &correct},
				}
			},
			wantScore: 100.0 / 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newTestDB(t)
			svc := newTestService(t, conn)
			ctx := context.Background()

			userID := seedUser(t, conn, "taker")
			quizID := seedQuiz(t, conn, 3, false, false, true)
			questionIDs := seedQuestionBank(t, conn, quizID, 3)

			att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
			if err != nil {
				t.Fatalf("create attempt: %v", err)
			}

			score, err := svc.SubmitAnswers(ctx, att.ID, userID, tt.answers(questionIDs))
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if math.Abs(score-tt.wantScore) > 1e-9 {
				t.Fatalf("expected score %.4f, got %.4f", tt.wantScore, score)
			}
		})
	}
}

func TestSubmitZeroQuestionQuiz(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 0, false, false, true)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if len(att.QuestionOrder) != 0 {
		t.Fatalf("expected empty order, got %v", att.QuestionOrder)
	}

	score, err := svc.SubmitAnswers(ctx, att.ID, userID, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected score 0, got %.2f", score)
	}
}

func TestSubmitSealsAttempt(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	questionIDs := seedQuestionBank(t, conn, quizID, 2)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	sel := 0
	if _, err := svc.SubmitAnswers(ctx, att.ID, userID, []AnswerInput{
		{QuestionID: questionIDs[0], SelectedOption: &sel},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.SaveProgress(ctx, att.ID, userID, nil); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected sealed attempt to reject save, got %v", err)
	}
	if _, err := svc.SubmitAnswers(ctx, att.ID, userID, nil); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected sealed attempt to reject resubmit, got %v", err)
	}

	// the quiz reopens as a fresh attempt now that the old one is sealed
	next, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("new attempt after seal: %v", err)
	}
	if next.ID == att.ID {
		t.Fatal("expected a fresh attempt after submission")
	}
}

func TestSubmitIgnoresUnknownAndForeignQuestions(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	questionIDs := seedQuestionBank(t, conn, quizID, 2)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	sel := 0
	score, err := svc.SubmitAnswers(ctx, att.ID, userID, []AnswerInput{
		{QuestionID: questionIDs[0], SelectedOption: &sel},
		{QuestionID: 424242, SelectedOption: &sel},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if math.Abs(score-50) > 1e-9 {
		t.Fatalf("expected score 50, got %.4f", score)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM attempt_answers WHERE attempt_id = $1`, att.ID).Scan(&count); err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected unknown question dropped, got %d answer rows", count)
	}
}

func TestSaveAndSubmitRejectForeignAttempt(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	ownerID := seedUser(t, conn, "owner")
	otherID := seedUser(t, conn, "other")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	seedQuestionBank(t, conn, quizID, 2)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, ownerID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	if err := svc.SaveProgress(ctx, att.ID, otherID, nil); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected foreign save to look like a missing attempt, got %v", err)
	}
	if _, err := svc.SubmitAnswers(ctx, att.ID, otherID, nil); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected foreign submit to look like a missing attempt, got %v", err)
	}
}

func TestGetResult(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	questionIDs := seedQuestionBank(t, conn, quizID, 2)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	if _, err := svc.GetResult(ctx, att.ID); !errors.Is(err, ErrAttemptNotCompleted) {
		t.Fatalf("expected open attempt to refuse result, got %v", err)
	}

	good, bad := 0, 1
	if _, err := svc.SubmitAnswers(ctx, att.ID, userID, []AnswerInput{
		{QuestionID: questionIDs[0], SelectedOption: &good},
		{QuestionID: questionIDs[1], SelectedOption: &bad},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	res, err := svc.GetResult(ctx, att.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.Score == nil || math.Abs(*res.Score-50) > 1e-9 {
		t.Fatalf("expected score 50, got %v", res.Score)
	}
	if res.SubmitTime == nil {
		t.Fatal("expected submit time on completed attempt")
	}
	if len(res.Answers) != 2 {
		t.Fatalf("expected 2 answer details, got %d", len(res.Answers))
	}
	for _, d := range res.Answers {
		if d.IsCorrect == nil {
			t.Fatalf("answer for question %d missing verdict", d.QuestionID)
		}
		wantCorrect := d.QuestionID == questionIDs[0]
		if *d.IsCorrect != wantCorrect {
			t.Fatalf("question %d: verdict %v, want %v", d.QuestionID, *d.IsCorrect, wantCorrect)
		}
	}

	if _, err := svc.GetResult(ctx, 9999); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestGetAttemptOwner(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	seedQuestionBank(t, conn, quizID, 2)

	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	owner, err := svc.GetAttemptOwner(ctx, att.ID)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != userID {
		t.Fatalf("expected owner %d, got %d", userID, owner)
	}

	if _, err := svc.GetAttemptOwner(ctx, 9999); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestListAttempts(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	aliceID := seedUser(t, conn, "alice")
	bobID := seedUser(t, conn, "bob")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	seedQuestionBank(t, conn, quizID, 2)

	if _, err := svc.GetOrCreateAttempt(ctx, quizID, aliceID); err != nil {
		t.Fatalf("alice attempt: %v", err)
	}
	if _, err := svc.GetOrCreateAttempt(ctx, quizID, bobID); err != nil {
		t.Fatalf("bob attempt: %v", err)
	}

	all, err := svc.ListAttempts(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(all))
	}

	mine, err := svc.ListUserAttempts(ctx, aliceID, 0, 0)
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 1 || mine[0].UserID != aliceID {
		t.Fatalf("expected only alice's attempt, got %+v", mine)
	}
}

func TestSubmitDeniedForSecondOpenAttemptInsert(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()

	userID := seedUser(t, conn, "taker")
	quizID := seedQuiz(t, conn, 2, false, false, true)
	seedQuestionBank(t, conn, quizID, 2)

	svc := newTestService(t, conn)
	att, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	// a raw second insert trips the partial unique index on open attempts
	_, err = conn.Exec(`
		INSERT INTO attempts (quiz_id, user_id, question_order, is_completed, start_time)
		VALUES ($1, $2, '[]', FALSE, $3)
	`, quizID, userID, time.Now().UTC())
	if err == nil {
		t.Fatal("expected unique index to reject a second open attempt")
	}

	// the service-level path resolves the race by returning the winner
	again, err := svc.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		t.Fatalf("resolve race: %v", err)
	}
	if again.ID != att.ID {
		t.Fatalf("expected winner attempt %d, got %d", att.ID, again.ID)
	}
}
