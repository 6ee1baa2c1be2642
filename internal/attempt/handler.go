package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"quizhub/internal/app/apiresp"
	"quizhub/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc attemptService
}

type attemptService interface {
	GetPage(ctx context.Context, quizID, userID int64, page int) (*PageView, error)
	SaveProgress(ctx context.Context, attemptID, userID int64, answers []AnswerInput) error
	SubmitAnswers(ctx context.Context, attemptID, userID int64, answers []AnswerInput) (float64, error)
	ListAttempts(ctx context.Context, limit, offset int) ([]Attempt, error)
	ListUserAttempts(ctx context.Context, userID int64, limit, offset int) ([]Attempt, error)
	GetAttemptOwner(ctx context.Context, attemptID int64) (int64, error)
	GetResult(ctx context.Context, attemptID int64) (*Result, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type answersRequest struct {
	Answers []AnswerInput `json:"answers"`
}

// takerQuestion mirrors QuestionView without the correct answer; page
// payloads for takers must never leak it.
type takerQuestion struct {
	QuestionID     int64    `json:"id"`
	Content        string   `json:"content"`
	Options        []string `json:"options"`
	SelectedOption *int     `json:"selected_option,omitempty"`
}

type takerPage struct {
	AttemptID  int64           `json:"attempt_id"`
	QuizID     int64           `json:"quiz_id"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
	PageSize   int             `json:"page_size"`
	Questions  []takerQuestion `json:"questions"`
}

func NewHandler(svc attemptService) *Handler {
	return &Handler{svc: svc}
}

// TakePage opens (or resumes) the caller's attempt on a quiz and returns
// one page of its questions.
func (h *Handler) TakePage(w http.ResponseWriter, r *http.Request) {
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

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	view, err := h.svc.GetPage(r.Context(), quizID, user.ID, page)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrAttemptConflict):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: ErrAttemptConflict.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: stripCorrectAnswers(view)})
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	attemptID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid attempt id"})
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req answersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	if err := h.svc.SaveProgress(r.Context(), attemptID, user.ID, req.Answers); err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "saved"}})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	attemptID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid attempt id"})
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req answersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	score, err := h.svc.SubmitAnswers(r.Context(), attemptID, user.ID, req.Answers)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]float64{"score": score}})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	attempts, err := h.svc.ListAttempts(r.Context(), limit, offset)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: attempts})
}

func (h *Handler) ListMy(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	attempts, err := h.svc.ListUserAttempts(r.Context(), user.ID, limit, offset)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: attempts})
}

// Result returns graded detail. Takers see only their own attempts;
// admins see all.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	attemptID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid attempt id"})
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	ownerID, err := h.svc.GetAttemptOwner(r.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	if ownerID != user.ID && user.Role != auth.RoleAdmin {
		// hidden, not forbidden: takers cannot probe other attempt ids
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: ErrAttemptNotFound.Error()})
		return
	}

	result, err := h.svc.GetResult(r.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrAttemptNotCompleted):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func stripCorrectAnswers(view *PageView) takerPage {
	page := takerPage{
		AttemptID:  view.AttemptID,
		QuizID:     view.QuizID,
		Page:       view.Page,
		TotalPages: view.TotalPages,
		PageSize:   view.PageSize,
		Questions:  make([]takerQuestion, 0, len(view.Questions)),
	}
	for _, q := range view.Questions {
		page.Questions = append(page.Questions, takerQuestion{
			QuestionID:     q.QuestionID,
			Content:        q.Content,
			Options:        q.Options,
			SelectedOption: q.SelectedOption,
		})
	}
	return page
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
