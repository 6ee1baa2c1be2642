package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"quizhub/internal/app/apiresp"
	"quizhub/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc quizService
}

type quizService interface {
	CreateQuiz(ctx context.Context, in CreateQuizInput) (*Quiz, error)
	ListQuizzes(ctx context.Context, viewerIsAdmin bool, limit, offset int) ([]Quiz, error)
	GetQuiz(ctx context.Context, quizID int64) (*Quiz, error)
	UpdateQuiz(ctx context.Context, in UpdateQuizInput) (*Quiz, error)
	DeleteQuiz(ctx context.Context, quizID int64) error
	CreateQuestion(ctx context.Context, in CreateQuestionInput) (*Question, error)
	ListQuestions(ctx context.Context, quizID int64, includeInactive bool) ([]Question, error)
	ImportQuestionsExcel(ctx context.Context, quizID int64, r io.Reader) (*QuestionImportReport, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createQuizRequest struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	QuestionsCount     int    `json:"questions_count"`
	RandomizeQuestions bool   `json:"randomize_questions"`
	RandomizeOptions   bool   `json:"randomize_options"`
}

type updateQuizRequest struct {
	Title              *string `json:"title"`
	Description        *string `json:"description"`
	QuestionsCount     *int    `json:"questions_count"`
	RandomizeQuestions *bool   `json:"randomize_questions"`
	RandomizeOptions   *bool   `json:"randomize_options"`
	IsActive           *bool   `json:"is_active"`
}

type createQuestionRequest struct {
	Content       string   `json:"content"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	DisplayOrder  int      `json:"display_order"`
}

type quizDetail struct {
	Quiz
	Questions []Question `json:"questions,omitempty"`
}

func NewHandler(svc quizService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	created, err := h.svc.CreateQuiz(r.Context(), CreateQuizInput{
		Title:              req.Title,
		Description:        req.Description,
		QuestionsCount:     req.QuestionsCount,
		RandomizeQuestions: req.RandomizeQuestions,
		RandomizeOptions:   req.RandomizeOptions,
		CreatedBy:          user.ID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: created})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	quizzes, err := h.svc.ListQuizzes(r.Context(), user.Role == auth.RoleAdmin, limit, offset)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: quizzes})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	q, err := h.svc.GetQuiz(r.Context(), quizID)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	isAdmin := user.Role == auth.RoleAdmin
	if !q.IsActive && !isAdmin {
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: ErrQuizNotFound.Error()})
		return
	}

	detail := quizDetail{Quiz: *q}
	// question content with correct answers is only exposed to admins;
	// takers get questions through the attempt page endpoint
	if isAdmin {
		questions, err := h.svc.ListQuestions(r.Context(), quizID, true)
		if err != nil && !errors.Is(err, ErrQuizNotFound) {
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
			return
		}
		detail.Questions = questions
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: detail})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	var req updateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	updated, err := h.svc.UpdateQuiz(r.Context(), UpdateQuizInput{
		ID:                 quizID,
		Title:              req.Title,
		Description:        req.Description,
		QuestionsCount:     req.QuestionsCount,
		RandomizeQuestions: req.RandomizeQuestions,
		RandomizeOptions:   req.RandomizeOptions,
		IsActive:           req.IsActive,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: updated})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	if err := h.svc.DeleteQuiz(r.Context(), quizID); err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	created, err := h.svc.CreateQuestion(r.Context(), CreateQuestionInput{
		QuizID:        quizID,
		Content:       req.Content,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		DisplayOrder:  req.DisplayOrder,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: created})
}

func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	questions, err := h.svc.ListQuestions(r.Context(), quizID, true)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: questions})
}

func (h *Handler) ImportQuestions(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "file field is required"})
		return
	}
	defer func() { _ = file.Close() }()

	report, err := h.svc.ImportQuestionsExcel(r.Context(), quizID, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: report})
}

func parseID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
