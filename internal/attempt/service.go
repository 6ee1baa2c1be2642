package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	ErrQuizNotFound        = errors.New("quiz not found")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptConflict     = errors.New("attempt already being created")
	ErrAttemptNotCompleted = errors.New("attempt not completed")
)

type Service struct {
	db *sql.DB

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Attempt struct {
	ID            int64      `json:"id"`
	QuizID        int64      `json:"quiz_id"`
	UserID        int64      `json:"user_id"`
	QuestionOrder []int64    `json:"question_order"`
	Score         *float64   `json:"score,omitempty"`
	IsCompleted   bool       `json:"is_completed"`
	StartTime     time.Time  `json:"start_time"`
	SubmitTime    *time.Time `json:"submit_time,omitempty"`
}

// QuestionView is one question as shown to a taker: options possibly
// shuffled, correct answer remapped to match, prior selection re-attached.
type QuestionView struct {
	QuestionID     int64    `json:"id"`
	Content        string   `json:"content"`
	Options        []string `json:"options"`
	CorrectAnswer  int      `json:"correct_answer"`
	SelectedOption *int     `json:"selected_option,omitempty"`
}

type PageView struct {
	AttemptID  int64          `json:"attempt_id"`
	QuizID     int64          `json:"quiz_id"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	PageSize   int            `json:"page_size"`
	Questions  []QuestionView `json:"questions"`
}

type AnswerInput struct {
	QuestionID     int64    `json:"question_id"`
	SelectedOption *int     `json:"selected_option"`
	OptionsOrder   []string `json:"options_order,omitempty"`
}

type AnswerDetail struct {
	QuestionID     int64    `json:"question_id"`
	Content        string   `json:"question_content"`
	Options        []string `json:"options"`
	CorrectAnswer  int      `json:"correct_answer"`
	SelectedOption *int     `json:"selected_option,omitempty"`
	IsCorrect      *bool    `json:"is_correct,omitempty"`
}

type Result struct {
	AttemptID  int64          `json:"attempt_id"`
	QuizID     int64          `json:"quiz_id"`
	QuizTitle  string         `json:"quiz_title"`
	UserID     int64          `json:"user_id"`
	StartTime  time.Time      `json:"start_time"`
	SubmitTime *time.Time     `json:"submit_time,omitempty"`
	Score      *float64       `json:"score,omitempty"`
	Answers    []AnswerDetail `json:"answers"`
}

type quizRow struct {
	ID                 int64
	Title              string
	QuestionsCount     int
	RandomizeQuestions bool
	RandomizeOptions   bool
	IsActive           bool
}

func NewService(db *sql.DB) *Service {
	return NewServiceWithSource(db, rand.NewSource(time.Now().UnixNano()))
}

// NewServiceWithSource fixes the randomness source; tests use it to make
// sampling and option shuffles deterministic.
func NewServiceWithSource(db *sql.DB, src rand.Source) *Service {
	return &Service{db: db, rng: rand.New(src)}
}

// GetOrCreateAttempt returns the user's open attempt for the quiz, or
// assembles a new one. The question order is fixed at creation and never
// reshuffled: repeat calls while the attempt stays open return it
// unchanged.
func (s *Service) GetOrCreateAttempt(ctx context.Context, quizID, userID int64) (*Attempt, error) {
	if existing, err := s.findOpenAttempt(ctx, quizID, userID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.IsActive {
		return nil, ErrQuizNotFound
	}

	questionIDs, err := s.loadActiveQuestionIDs(ctx, quizID)
	if err != nil {
		return nil, err
	}

	var order []int64
	if quiz.RandomizeQuestions && len(questionIDs) > quiz.QuestionsCount {
		s.rngMu.Lock()
		order = sampleInt64s(s.rng, questionIDs, quiz.QuestionsCount)
		s.rngMu.Unlock()
	} else {
		n := quiz.QuestionsCount
		if n > len(questionIDs) {
			n = len(questionIDs)
		}
		order = questionIDs[:n]
	}

	orderJSON, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("encode question order: %w", err)
	}

	now := time.Now().UTC()
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO attempts (quiz_id, user_id, question_order, is_completed, start_time)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id
	`, quizID, userID, string(orderJSON), now).Scan(&id)
	if err != nil {
		// the partial unique index on open attempts rejects a concurrent
		// double-create; hand back the row that won the race
		if winner, findErr := s.findOpenAttempt(ctx, quizID, userID); findErr == nil && winner != nil {
			return winner, nil
		}
		return nil, fmt.Errorf("insert attempt: %w", ErrAttemptConflict)
	}

	return &Attempt{
		ID:            id,
		QuizID:        quizID,
		UserID:        userID,
		QuestionOrder: order,
		IsCompleted:   false,
		StartTime:     now,
	}, nil
}

// GetPage assembles (or retrieves) the attempt and materializes one page
// of its question order.
func (s *Service) GetPage(ctx context.Context, quizID, userID int64, page int) (*PageView, error) {
	att, err := s.GetOrCreateAttempt(ctx, quizID, userID)
	if err != nil {
		return nil, err
	}

	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	pageSize := pageSizeFor(quiz.QuestionsCount)
	totalPages := totalPagesFor(len(att.QuestionOrder), pageSize)
	page = clampPage(page, totalPages)
	start, end := pageBounds(page, pageSize, len(att.QuestionOrder))
	pageIDs := att.QuestionOrder[start:end]

	view := &PageView{
		AttemptID:  att.ID,
		QuizID:     quizID,
		Page:       page,
		TotalPages: totalPages,
		PageSize:   pageSize,
		Questions:  make([]QuestionView, 0, len(pageIDs)),
	}
	if len(pageIDs) == 0 {
		return view, nil
	}

	saved, err := s.loadSavedSelections(ctx, att.ID)
	if err != nil {
		return nil, err
	}

	for _, qid := range pageIDs {
		var content string
		var optionsJSON string
		var correct int
		err := s.db.QueryRowContext(ctx, `
			SELECT content, options, correct_answer
			FROM questions
			WHERE id = $1
		`, qid).Scan(&content, &optionsJSON, &correct)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// question deleted after assembly; the slot is skipped
				continue
			}
			return nil, fmt.Errorf("load question %d: %w", qid, err)
		}

		var options []string
		if err := json.Unmarshal([]byte(optionsJSON), &options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", qid, err)
		}

		if quiz.RandomizeOptions {
			s.rngMu.Lock()
			options, correct = shuffledOptions(s.rng, options, correct)
			s.rngMu.Unlock()
		}

		qv := QuestionView{
			QuestionID:    qid,
			Content:       content,
			Options:       options,
			CorrectAnswer: correct,
		}
		if sel, ok := saved[qid]; ok {
			qv.SelectedOption = sel
		}
		view.Questions = append(view.Questions, qv)
	}

	return view, nil
}

// SaveProgress replaces the attempt's stored answers without grading them.
// It never touches completion state, so the attempt stays open.
func (s *Service) SaveProgress(ctx context.Context, attemptID, userID int64, answers []AnswerInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.loadOpenAttemptTx(ctx, tx, attemptID, userID); err != nil {
		return err
	}

	if err := replaceAnswers(ctx, tx, attemptID, answers, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// SubmitAnswers replaces the attempt's answers, grades them, and seals the
// attempt. The denominator is the assembled question count, not the number
// of submitted answers: missing answers just lower the score. Answers for
// questions that no longer exist are dropped entirely.
func (s *Service) SubmitAnswers(ctx context.Context, attemptID, userID int64, answers []AnswerInput) (float64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	att, err := s.loadOpenAttemptTx(ctx, tx, attemptID, userID)
	if err != nil {
		return 0, err
	}

	graded := make([]AnswerInput, 0, len(answers))
	verdicts := make([]bool, 0, len(answers))
	correctCount := 0
	for _, ans := range answers {
		var correctAnswer int
		err := tx.QueryRowContext(ctx, `
			SELECT correct_answer FROM questions WHERE id = $1
		`, ans.QuestionID).Scan(&correctAnswer)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return 0, fmt.Errorf("load question %d: %w", ans.QuestionID, err)
		}

		isCorrect := ans.SelectedOption != nil && *ans.SelectedOption == correctAnswer
		if isCorrect {
			correctCount++
		}
		graded = append(graded, ans)
		verdicts = append(verdicts, isCorrect)
	}

	if err := replaceAnswers(ctx, tx, attemptID, graded, verdicts); err != nil {
		return 0, err
	}

	score := 0.0
	if total := len(att.QuestionOrder); total > 0 {
		score = float64(correctCount) / float64(total) * 100
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET score = $1, is_completed = TRUE, submit_time = $2
		WHERE id = $3
	`, score, now, attemptID); err != nil {
		return 0, fmt.Errorf("seal attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit submit: %w", err)
	}
	return score, nil
}

func (s *Service) ListAttempts(ctx context.Context, limit, offset int) ([]Attempt, error) {
	return s.listAttempts(ctx, 0, limit, offset)
}

func (s *Service) ListUserAttempts(ctx context.Context, userID int64, limit, offset int) ([]Attempt, error) {
	return s.listAttempts(ctx, userID, limit, offset)
}

func (s *Service) listAttempts(ctx context.Context, userID int64, limit, offset int) ([]Attempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, quiz_id, user_id, question_order, score, is_completed, start_time, submit_time
		FROM attempts
	`
	args := []interface{}{}
	if userID > 0 {
		query += ` WHERE user_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
		args = append(args, userID, limit, offset)
	} else {
		query += ` ORDER BY id DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]Attempt, 0)
	for rows.Next() {
		att, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *att)
	}
	return attempts, rows.Err()
}

// GetAttemptOwner resolves the owning user for authorization checks.
func (s *Service) GetAttemptOwner(ctx context.Context, attemptID int64) (int64, error) {
	var ownerID int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM attempts WHERE id = $1
	`, attemptID).Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAttemptNotFound
		}
		return 0, fmt.Errorf("load attempt owner: %w", err)
	}
	return ownerID, nil
}

// GetResult returns the graded detail of a completed attempt.
func (s *Service) GetResult(ctx context.Context, attemptID int64) (*Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.quiz_id, a.user_id, a.score, a.is_completed, a.start_time, a.submit_time, q.title
		FROM attempts a
		JOIN quizzes q ON q.id = a.quiz_id
		WHERE a.id = $1
	`, attemptID)

	var res Result
	var score sql.NullFloat64
	var isCompleted bool
	var submitTime sql.NullTime
	if err := row.Scan(&res.AttemptID, &res.QuizID, &res.UserID, &score, &isCompleted, &res.StartTime, &submitTime, &res.QuizTitle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if !isCompleted {
		return nil, ErrAttemptNotCompleted
	}
	if score.Valid {
		res.Score = &score.Float64
	}
	if submitTime.Valid {
		res.SubmitTime = &submitTime.Time
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT aa.question_id, aa.selected_option, aa.is_correct,
		       q.content, q.options, q.correct_answer
		FROM attempt_answers aa
		JOIN questions q ON q.id = aa.question_id
		WHERE aa.attempt_id = $1
		ORDER BY aa.id
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	res.Answers = make([]AnswerDetail, 0)
	for rows.Next() {
		var d AnswerDetail
		var selected sql.NullInt64
		var isCorrect sql.NullBool
		var optionsJSON string
		if err := rows.Scan(&d.QuestionID, &selected, &isCorrect, &d.Content, &optionsJSON, &d.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if err := json.Unmarshal([]byte(optionsJSON), &d.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", d.QuestionID, err)
		}
		if selected.Valid {
			v := int(selected.Int64)
			d.SelectedOption = &v
		}
		if isCorrect.Valid {
			v := isCorrect.Bool
			d.IsCorrect = &v
		}
		res.Answers = append(res.Answers, d)
	}
	return &res, rows.Err()
}

func (s *Service) findOpenAttempt(ctx context.Context, quizID, userID int64) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, quiz_id, user_id, question_order, score, is_completed, start_time, submit_time
		FROM attempts
		WHERE quiz_id = $1 AND user_id = $2 AND is_completed = FALSE
	`, quizID, userID)

	att, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return att, nil
}

// loadOpenAttemptTx loads an open attempt owned by the user, inside the
// caller's transaction. A missing attempt, a sealed attempt, and another
// user's attempt are indistinguishable to the caller.
func (s *Service) loadOpenAttemptTx(ctx context.Context, tx *sql.Tx, attemptID, userID int64) (*Attempt, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, quiz_id, user_id, question_order, score, is_completed, start_time, submit_time
		FROM attempts
		WHERE id = $1 AND user_id = $2 AND is_completed = FALSE
	`, attemptID, userID)

	att, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return att, nil
}

func (s *Service) loadQuiz(ctx context.Context, quizID int64) (*quizRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, questions_count, randomize_questions, randomize_options, is_active
		FROM quizzes
		WHERE id = $1
	`, quizID)

	var q quizRow
	if err := row.Scan(&q.ID, &q.Title, &q.QuestionsCount, &q.RandomizeQuestions, &q.RandomizeOptions, &q.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	return &q, nil
}

func (s *Service) loadActiveQuestionIDs(ctx context.Context, quizID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM questions
		WHERE quiz_id = $1 AND is_active = TRUE
		ORDER BY display_order, id
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list active questions: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Service) loadSavedSelections(ctx context.Context, attemptID int64) (map[int64]*int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, selected_option
		FROM attempt_answers
		WHERE attempt_id = $1
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load saved answers: %w", err)
	}
	defer rows.Close()

	saved := make(map[int64]*int)
	for rows.Next() {
		var qid int64
		var selected sql.NullInt64
		if err := rows.Scan(&qid, &selected); err != nil {
			return nil, fmt.Errorf("scan saved answer: %w", err)
		}
		if selected.Valid {
			v := int(selected.Int64)
			saved[qid] = &v
		} else {
			saved[qid] = nil
		}
	}
	return saved, rows.Err()
}

// replaceAnswers implements the wholesale answer replacement both save and
// submit share: existing rows go away, the new set comes in. verdicts is
// nil for ungraded saves and parallel to answers for submits.
func replaceAnswers(ctx context.Context, tx *sql.Tx, attemptID int64, answers []AnswerInput, verdicts []bool) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM attempt_answers WHERE attempt_id = $1
	`, attemptID); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}

	now := time.Now().UTC()
	for i, ans := range answers {
		var selected interface{}
		if ans.SelectedOption != nil {
			selected = *ans.SelectedOption
		}
		var isCorrect interface{}
		if verdicts != nil {
			isCorrect = verdicts[i]
		}
		var optionsOrder interface{}
		if len(ans.OptionsOrder) > 0 {
			encoded, err := json.Marshal(ans.OptionsOrder)
			if err != nil {
				return fmt.Errorf("encode options order: %w", err)
			}
			optionsOrder = string(encoded)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attempt_answers (attempt_id, question_id, selected_option, is_correct, options_order, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, attemptID, ans.QuestionID, selected, isCorrect, optionsOrder, now); err != nil {
			return fmt.Errorf("insert answer for question %d: %w", ans.QuestionID, err)
		}
	}
	return nil
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var att Attempt
	var orderJSON string
	var score sql.NullFloat64
	var submitTime sql.NullTime
	if err := row.Scan(&att.ID, &att.QuizID, &att.UserID, &orderJSON, &score, &att.IsCompleted, &att.StartTime, &submitTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	if err := json.Unmarshal([]byte(orderJSON), &att.QuestionOrder); err != nil {
		return nil, fmt.Errorf("decode question order for attempt %d: %w", att.ID, err)
	}
	if score.Valid {
		att.Score = &score.Float64
	}
	if submitTime.Valid {
		att.SubmitTime = &submitTime.Time
	}
	return &att, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
