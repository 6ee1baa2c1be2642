package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"quizhub/internal/cache"
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidInput     = errors.New("invalid input")
)

type Service struct {
	db       *sql.DB
	cache    cache.Cache
	cacheTTL time.Duration
}

type Quiz struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	QuestionsCount     int       `json:"questions_count"`
	RandomizeQuestions bool      `json:"randomize_questions"`
	RandomizeOptions   bool      `json:"randomize_options"`
	IsActive           bool      `json:"is_active"`
	CreatedBy          *int64    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Question struct {
	ID            int64     `json:"id"`
	QuizID        int64     `json:"quiz_id"`
	Content       string    `json:"content"`
	Options       []string  `json:"options"`
	CorrectAnswer int       `json:"correct_answer"`
	DisplayOrder  int       `json:"display_order"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreateQuizInput struct {
	Title              string
	Description        string
	QuestionsCount     int
	RandomizeQuestions bool
	RandomizeOptions   bool
	CreatedBy          int64
}

type UpdateQuizInput struct {
	ID                 int64
	Title              *string
	Description        *string
	QuestionsCount     *int
	RandomizeQuestions *bool
	RandomizeOptions   *bool
	IsActive           *bool
}

type CreateQuestionInput struct {
	QuizID        int64
	Content       string
	Options       []string
	CorrectAnswer int
	DisplayOrder  int
}

func NewService(db *sql.DB, c cache.Cache, cacheTTL time.Duration) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Service{db: db, cache: c, cacheTTL: cacheTTL}
}

func (s *Service) CreateQuiz(ctx context.Context, in CreateQuizInput) (*Quiz, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.QuestionsCount < 0 {
		return nil, fmt.Errorf("%w: questions_count must not be negative", ErrInvalidInput)
	}

	createdBy := sql.NullInt64{Int64: in.CreatedBy, Valid: in.CreatedBy > 0}

	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quizzes (
			title, description, questions_count,
			randomize_questions, randomize_options,
			is_active, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8)
		RETURNING id
	`, title, in.Description, in.QuestionsCount, in.RandomizeQuestions, in.RandomizeOptions, createdBy, now, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	s.cache.DeletePrefix(ctx, cache.QuizListPrefix)

	q := &Quiz{
		ID:                 id,
		Title:              title,
		Description:        in.Description,
		QuestionsCount:     in.QuestionsCount,
		RandomizeQuestions: in.RandomizeQuestions,
		RandomizeOptions:   in.RandomizeOptions,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if createdBy.Valid {
		q.CreatedBy = &createdBy.Int64
	}
	return q, nil
}

// ListQuizzes returns all quizzes for admins and active ones for everyone
// else. Results pass through the cache; a miss or cache failure reads the
// store.
func (s *Service) ListQuizzes(ctx context.Context, viewerIsAdmin bool, limit, offset int) ([]Quiz, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	key := cache.QuizListKey(viewerIsAdmin, limit, offset)
	if data, ok := s.cache.Get(ctx, key); ok {
		var cached []Quiz
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	query := `
		SELECT id, title, description, questions_count,
		       randomize_questions, randomize_options,
		       is_active, created_by, created_at, updated_at
		FROM quizzes
	`
	if !viewerIsAdmin {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := make([]Quiz, 0)
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	if data, err := json.Marshal(quizzes); err == nil {
		s.cache.Set(ctx, key, data, s.cacheTTL)
	}
	return quizzes, nil
}

func (s *Service) GetQuiz(ctx context.Context, quizID int64) (*Quiz, error) {
	key := cache.QuizKey(quizID)
	if data, ok := s.cache.Get(ctx, key); ok {
		var cached Quiz
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, questions_count,
		       randomize_questions, randomize_options,
		       is_active, created_by, created_at, updated_at
		FROM quizzes
		WHERE id = $1
	`, quizID)

	q, err := scanQuiz(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, err
	}

	if data, err := json.Marshal(q); err == nil {
		s.cache.Set(ctx, key, data, s.cacheTTL)
	}
	return q, nil
}

func (s *Service) UpdateQuiz(ctx context.Context, in UpdateQuizInput) (*Quiz, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
	}
	if in.QuestionsCount != nil && *in.QuestionsCount < 0 {
		return nil, fmt.Errorf("%w: questions_count must not be negative", ErrInvalidInput)
	}

	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if in.Title != nil {
		sets = append(sets, "title = "+arg(strings.TrimSpace(*in.Title)))
	}
	if in.Description != nil {
		sets = append(sets, "description = "+arg(*in.Description))
	}
	if in.QuestionsCount != nil {
		sets = append(sets, "questions_count = "+arg(*in.QuestionsCount))
	}
	if in.RandomizeQuestions != nil {
		sets = append(sets, "randomize_questions = "+arg(*in.RandomizeQuestions))
	}
	if in.RandomizeOptions != nil {
		sets = append(sets, "randomize_options = "+arg(*in.RandomizeOptions))
	}
	if in.IsActive != nil {
		sets = append(sets, "is_active = "+arg(*in.IsActive))
	}
	sets = append(sets, "updated_at = "+arg(time.Now().UTC()))

	query := "UPDATE quizzes SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(in.ID)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update quiz: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update quiz: %w", err)
	}
	if affected == 0 {
		return nil, ErrQuizNotFound
	}

	s.invalidateQuiz(ctx, in.ID)
	return s.GetQuiz(ctx, in.ID)
}

func (s *Service) DeleteQuiz(ctx context.Context, quizID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if affected == 0 {
		return ErrQuizNotFound
	}

	s.invalidateQuiz(ctx, quizID)
	return nil
}

func (s *Service) CreateQuestion(ctx context.Context, in CreateQuestionInput) (*Question, error) {
	if err := validateQuestion(in.Content, in.Options, in.CorrectAnswer); err != nil {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)
	`, in.QuizID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check quiz: %w", err)
	}
	if !exists {
		return nil, ErrQuizNotFound
	}

	optionsJSON, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}

	now := time.Now().UTC()
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO questions (
			quiz_id, content, options, correct_answer,
			display_order, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
		RETURNING id
	`, in.QuizID, in.Content, string(optionsJSON), in.CorrectAnswer, in.DisplayOrder, now, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	s.cache.Delete(ctx, cache.QuizQuestionsKey(in.QuizID))

	return &Question{
		ID:            id,
		QuizID:        in.QuizID,
		Content:       in.Content,
		Options:       in.Options,
		CorrectAnswer: in.CorrectAnswer,
		DisplayOrder:  in.DisplayOrder,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *Service) ListQuestions(ctx context.Context, quizID int64, includeInactive bool) ([]Question, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)
	`, quizID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check quiz: %w", err)
	}
	if !exists {
		return nil, ErrQuizNotFound
	}

	query := `
		SELECT id, quiz_id, content, options, correct_answer,
		       display_order, is_active, created_at, updated_at
		FROM questions
		WHERE quiz_id = $1
	`
	if !includeInactive {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY display_order, id`

	rows, err := s.db.QueryContext(ctx, query, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := make([]Question, 0)
	for rows.Next() {
		var q Question
		var optionsJSON string
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Content, &optionsJSON, &q.CorrectAnswer, &q.DisplayOrder, &q.IsActive, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Service) invalidateQuiz(ctx context.Context, quizID int64) {
	s.cache.Delete(ctx, cache.QuizKey(quizID), cache.QuizQuestionsKey(quizID))
	s.cache.DeletePrefix(ctx, cache.QuizListPrefix)
}

func validateQuestion(content string, options []string, correctAnswer int) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if len(options) < 2 {
		return fmt.Errorf("%w: at least 2 options are required", ErrInvalidInput)
	}
	if correctAnswer < 0 || correctAnswer >= len(options) {
		return fmt.Errorf("%w: correct_answer index out of range", ErrInvalidInput)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuiz(row rowScanner) (*Quiz, error) {
	var q Quiz
	var createdBy sql.NullInt64
	if err := row.Scan(
		&q.ID, &q.Title, &q.Description, &q.QuestionsCount,
		&q.RandomizeQuestions, &q.RandomizeOptions,
		&q.IsActive, &createdBy, &q.CreatedAt, &q.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan quiz: %w", err)
	}
	if createdBy.Valid {
		q.CreatedBy = &createdBy.Int64
	}
	return &q, nil
}
