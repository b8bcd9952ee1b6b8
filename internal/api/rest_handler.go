package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"referral_ledger/internal/auth"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/processor"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type APIHandler struct {
	processor      *processor.ActivationProcessor
	session        *auth.Session
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	processor *processor.ActivationProcessor,
	session *auth.Session,
	requestTimeout time.Duration,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return &APIHandler{
		processor:      processor,
		session:        session,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

type SubmitRequest struct {
	AccountID    string               `json:"account_id"`
	Amount       decimal.Decimal      `json:"amount"`
	Method       domain.PaymentMethod `json:"method"`
	MobileNumber string               `json:"mobile_number"`
	TrxID        string               `json:"trx_id,omitempty"`
}

type CreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type PaymentNumberRequest struct {
	Number string `json:"number"`
}

type CodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code,omitempty"`
}

type StatusResponse struct {
	ID      string               `json:"id"`
	Status  domain.RequestStatus `json:"status"`
	Message string               `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *APIHandler) ApproveActivationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.processor.ApproveActivation(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, result, http.StatusOK)
}

func (h *APIHandler) RejectActivationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := h.processor.RejectActivation(ctx, id); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, StatusResponse{ID: id, Status: domain.StatusRejected}, http.StatusOK)
}

func (h *APIHandler) ApproveWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := h.processor.ApproveWithdrawal(ctx, id); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, StatusResponse{ID: id, Status: domain.StatusApproved, Message: "Withdrawal marked as paid"}, http.StatusOK)
}

func (h *APIHandler) CreditAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req CreditRequest
	if !h.decode(w, r, &req) {
		return
	}

	accountID := chi.URLParam(r, "id")
	if err := h.processor.CreditAccount(ctx, accountID, req.Amount); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, map[string]string{"account_id": accountID, "credited": req.Amount.String()}, http.StatusOK)
}

func (h *APIHandler) SetPaymentNumberHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req PaymentNumberRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.processor.SetPaymentNumber(ctx, req.Number); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.GetPaymentNumberHandler(w, r)
}

func (h *APIHandler) GetPaymentNumberHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	number, err := h.processor.PaymentNumber(ctx)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, PaymentNumberRequest{Number: number}, http.StatusOK)
}

func (h *APIHandler) SubmitActivationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	activation, err := h.processor.SubmitActivation(ctx, req.AccountID, req.Amount, req.Method, req.MobileNumber, req.TrxID)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, activation, http.StatusCreated)
}

func (h *APIHandler) SubmitWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	withdrawal, err := h.processor.SubmitWithdrawal(ctx, req.AccountID, req.Amount, req.Method, req.MobileNumber)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, withdrawal, http.StatusCreated)
}

func (h *APIHandler) PendingActivationsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	reqs, err := h.processor.PendingActivations(ctx)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	if reqs == nil {
		reqs = []*domain.ActivationRequest{}
	}
	h.sendJSON(w, reqs, http.StatusOK)
}

func (h *APIHandler) PendingWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	reqs, err := h.processor.PendingWithdrawals(ctx)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	if reqs == nil {
		reqs = []*domain.WithdrawalRequest{}
	}
	h.sendJSON(w, reqs, http.StatusOK)
}

func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	stats, err := h.processor.Stats(ctx)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, stats, http.StatusOK)
}

func (h *APIHandler) RequestCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.session.RequestCode(r.Context(), req.Phone); err != nil {
		h.sendAuthError(w, err)
		return
	}
	h.sendJSON(w, map[string]string{"status": "code_sent"}, http.StatusAccepted)
}

func (h *APIHandler) VerifyCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	token, err := h.session.Verify(r.Context(), req.Phone, req.Code)
	if err != nil {
		h.sendAuthError(w, err)
		return
	}
	h.sendJSON(w, token, http.StatusOK)
}

func (h *APIHandler) ResetCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.session.Reset(req.Phone)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Revoke(bearerToken(r)); err != nil {
		h.sendAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	status := http.StatusOK
	if err := h.processor.Ping(ctx); err != nil {
		h.logger.Warn("Store health check failed", slog.String("error", err.Error()))
		response["status"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	h.sendJSON(w, response, status)
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrStoreFailure):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	case errors.Is(err, domain.ErrDataInconsistency):
		return http.StatusInternalServerError, "DATA_INCONSISTENCY"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "SERVER_ERROR"
	}
}

func (h *APIHandler) sendDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	h.sendError(w, err.Error(), status, code)
}

func (h *APIHandler) sendAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrPhoneNotAllowed):
		h.sendError(w, err.Error(), http.StatusForbidden, "PHONE_NOT_ALLOWED")
	case errors.Is(err, auth.ErrTooManyAttempts):
		h.sendError(w, err.Error(), http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS")
	case errors.Is(err, auth.ErrNoChallenge), errors.Is(err, auth.ErrCodeExpired),
		errors.Is(err, auth.ErrCodeMismatch), errors.Is(err, auth.ErrUnauthenticated):
		h.sendError(w, err.Error(), http.StatusUnauthorized, "UNAUTHORIZED")
	default:
		h.sendError(w, "Authentication failed", http.StatusInternalServerError, "SERVER_ERROR")
	}
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	errorResponse := ErrorResponse{
		Error: message,
		Code:  code,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}
