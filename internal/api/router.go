package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the public and admin routes. Admin routes need a bearer
// token issued by the auth endpoints.
func (h *APIHandler) NewRouter(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/health", h.HealthCheckHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/code", h.RequestCodeHandler)
		r.Post("/auth/verify", h.VerifyCodeHandler)
		r.Post("/auth/reset", h.ResetCodeHandler)

		r.Post("/activations", h.SubmitActivationHandler)
		r.Post("/withdrawals", h.SubmitWithdrawalHandler)
		r.Get("/payment-number", h.GetPaymentNumberHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Post("/logout", h.LogoutHandler)
			r.Get("/stats", h.StatsHandler)
			r.Put("/payment-number", h.SetPaymentNumberHandler)

			r.Get("/activations/pending", h.PendingActivationsHandler)
			r.Post("/activations/{id}/approve", h.ApproveActivationHandler)
			r.Post("/activations/{id}/reject", h.RejectActivationHandler)

			r.Get("/withdrawals/pending", h.PendingWithdrawalsHandler)
			r.Post("/withdrawals/{id}/approve", h.ApproveWithdrawalHandler)

			r.Post("/accounts/{id}/credit", h.CreditAccountHandler)
		})
	})

	return r
}

func (h *APIHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := h.session.Authenticate(bearerToken(r))
		if err != nil {
			h.sendAuthError(w, err)
			return
		}
		h.logger.DebugContext(r.Context(), "Admin request authenticated",
			slog.String("session_id", sessionID),
			slog.String("request_id", middleware.GetReqID(r.Context())))
		next.ServeHTTP(w, r)
	})
}

func (h *APIHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Info("HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
