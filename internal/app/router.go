package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"quizhub/internal/app/observability"
	"quizhub/internal/attempt"
	"quizhub/internal/auth"
	"quizhub/internal/cache"
	"quizhub/internal/quiz"
	"quizhub/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	store := cache.Select(context.Background(), cfg.RedisAddr, cfg.RedisDB)
	cacheTTL := time.Duration(cfg.CacheTTLSecs) * time.Second

	authSvc := auth.NewService(db, auth.ServiceConfig{
		JWTSecret:      cfg.JWTSecret,
		TokenTTL:       time.Duration(cfg.JWTTTLHours) * time.Hour,
		BcryptCost:     cfg.BcryptCost,
		BootstrapToken: cfg.BootstrapToken,
	})
	authHandler := auth.NewHandler(authSvc)

	quizSvc := quiz.NewService(db, store, cacheTTL)
	quizHandler := quiz.NewHandler(quizSvc)

	attemptSvc := attempt.NewService(db)
	attemptHandler := attempt.NewHandler(attemptSvc)

	reportSvc := report.NewService(db)
	reportHandler := report.NewHandler(reportSvc)

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/internal/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(RateLimitMiddleware(authLimiter))
			public.Post("/bootstrap/init", authHandler.BootstrapInit)
			public.Post("/auth/register", authHandler.Register)
			public.Post("/auth/login", authHandler.Login)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)

			secure.Get("/quizzes", quizHandler.List)
			secure.Get("/quizzes/{id}", quizHandler.Get)
			secure.Get("/quizzes/{id}/take", attemptHandler.TakePage)

			secure.Post("/attempts/{id}/save", attemptHandler.Save)
			secure.Post("/attempts/{id}/submit", attemptHandler.Submit)
			secure.Get("/attempts/my", attemptHandler.ListMy)
			secure.Get("/attempts/{id}/result", attemptHandler.Result)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles(auth.RoleAdmin))
				admin.Get("/users", authHandler.ListUsers)

				admin.Post("/quizzes", quizHandler.Create)
				admin.Put("/quizzes/{id}", quizHandler.Update)
				admin.Delete("/quizzes/{id}", quizHandler.Delete)
				admin.Post("/quizzes/{id}/questions", quizHandler.CreateQuestion)
				admin.Get("/quizzes/{id}/questions", quizHandler.ListQuestions)
				admin.Post("/quizzes/{id}/questions/import", quizHandler.ImportQuestions)

				admin.Get("/attempts", attemptHandler.List)
				admin.Get("/reports/quizzes/{id}/summary", reportHandler.Summary)
				admin.Get("/reports/quizzes/{id}/export", reportHandler.Export)
			})
		})
	})

	return r
}
