package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"quizhub/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc reportService
}

type reportService interface {
	SummaryByQuiz(ctx context.Context, quizID int64) (*QuizSummary, error)
	ExportAttemptsExcel(ctx context.Context, quizID int64, w io.Writer) error
}

func NewHandler(svc reportService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r, "id")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid quiz id")
		return
	}

	summary, err := h.svc.SummaryByQuiz(r.Context(), quizID)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	apiresp.WriteOK(w, r, http.StatusOK, summary)
}

// Export streams the completed attempts of a quiz as an xlsx download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	quizID, err := parseID(r, "id")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid quiz id")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="quiz_%d_attempts.xlsx"`, quizID))

	if err := h.svc.ExportAttemptsExcel(r.Context(), quizID, w); err != nil {
		// headers may already be out; a JSON error is only safe for the
		// not-found case caught before any workbook bytes are written
		if errors.Is(err, ErrQuizNotFound) {
			w.Header().Del("Content-Disposition")
			w.Header().Set("Content-Type", "application/json")
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
}

func parseID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}
