package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"referral_ledger/internal/api"
	"referral_ledger/internal/auth"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/processor"
	"referral_ledger/internal/repository/memory"
	"referral_ledger/internal/service"
	"referral_ledger/pkg/crypto"
	"referral_ledger/pkg/metrics"

	"github.com/shopspring/decimal"
)

const adminPhone = "01816395401"

type testEnv struct {
	store  *memory.Store
	sms    *service.MockSMSService
	admin  *service.MockAdminService
	notify *service.NotificationService
	server *httptest.Server
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.Default()
	store := memory.NewStore()
	sms := &service.MockSMSService{}
	admin := &service.MockAdminService{}
	notify := service.NewNotificationService(sms, admin, adminPhone, 2, logger)

	proc, err := processor.NewActivationProcessor(store, processor.DefaultConfig(),
		processor.WithLogger(logger),
		processor.WithMetrics(metrics.NewMetricsCollector(logger)),
		processor.WithNotifier(notify))
	if err != nil {
		t.Fatalf("build processor failed: %v", err)
	}
	session := auth.NewSession(adminPhone, crypto.NewSigner("test-secret", logger), notify,
		5*time.Minute, time.Hour, logger)
	handler := api.NewAPIHandler(proc, session, 5*time.Second, logger)

	server := httptest.NewServer(handler.NewRouter([]string{"*"}))
	t.Cleanup(server.Close)

	return &testEnv{store: store, sms: sms, admin: admin, notify: notify, server: server}
}

func mustCreateAccount(t *testing.T, env *testEnv, id, code, referrer string) {
	t.Helper()
	acc := &domain.Account{
		ID:           id,
		Name:         "user-" + id,
		ReferralCode: code,
		ReferrerID:   referrer,
		CreatedAt:    time.Now(),
	}
	if err := env.store.SaveAccount(context.Background(), acc); err != nil {
		t.Fatalf("save account failed: %v", err)
	}
}

func call(t *testing.T, env *testEnv, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request failed: %v", err)
		}
	}
	req, err := http.NewRequest(method, env.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response failed: %v", err)
		}
	}
	return resp.StatusCode
}

// waitForSMS polls the mock gateway until a message to phone containing the
// given text shows up.
func waitForSMS(t *testing.T, env *testEnv, phone, contains string) service.SentMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range env.sms.Sent() {
			if msg.To == phone && strings.Contains(msg.Message, contains) {
				return msg
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no SMS to %s containing %q", phone, contains)
	return service.SentMessage{}
}

func login(t *testing.T, env *testEnv) string {
	t.Helper()
	if code := call(t, env, "POST", "/api/v1/auth/code", "", api.CodeRequest{Phone: adminPhone}, nil); code != http.StatusAccepted {
		t.Fatalf("expected 202 from auth/code, got %d", code)
	}
	msg := waitForSMS(t, env, adminPhone, "login code")
	otp := msg.Message[strings.LastIndex(msg.Message, " ")+1:]

	var token auth.Token
	if code := call(t, env, "POST", "/api/v1/auth/verify", "", api.CodeRequest{Phone: adminPhone, Code: otp}, &token); code != http.StatusOK {
		t.Fatalf("expected 200 from auth/verify, got %d", code)
	}
	return token.Value
}

func balance(t *testing.T, env *testEnv, id string) decimal.Decimal {
	t.Helper()
	acc, err := env.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s failed: %v", id, err)
	}
	return acc.Balance
}

func TestIntegration_ActivationPaysUpline(t *testing.T) {
	env := setup(t)
	mustCreateAccount(t, env, "r", "R", domain.DefaultRootCode)
	mustCreateAccount(t, env, "m", "M", "R")
	mustCreateAccount(t, env, "n", "N", "m")
	token := login(t, env)

	var act domain.ActivationRequest
	code := call(t, env, "POST", "/api/v1/activations", "", api.SubmitRequest{
		AccountID:    "n",
		Amount:       decimal.NewFromInt(500),
		Method:       domain.MethodBkash,
		MobileNumber: "01712345678",
		TrxID:        "8N7A6B5C",
	}, &act)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	var result processor.ApprovalResult
	if code := call(t, env, "POST", "/api/v1/admin/activations/"+act.ID+"/approve", token, nil, &result); code != http.StatusOK {
		t.Fatalf("expected 200 from approve, got %d", code)
	}

	if got := balance(t, env, "m"); !got.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected immediate referrer paid 20, got %s", got)
	}
	if got := balance(t, env, "r"); !got.Equal(decimal.NewFromInt(35)) {
		t.Errorf("expected depth 1 paid 35, got %s", got)
	}
	if !result.TotalPaid.Equal(decimal.NewFromInt(55)) {
		t.Errorf("expected 55 paid in total, got %s", result.TotalPaid)
	}
	acc, _ := env.store.GetAccount(context.Background(), "n")
	if !acc.IsActive {
		t.Error("expected account to be active after approval")
	}

	waitForSMS(t, env, "01712345678", "activated")

	var stats domain.Stats
	if code := call(t, env, "GET", "/api/v1/admin/stats", token, nil, &stats); code != http.StatusOK {
		t.Fatalf("expected 200 from stats, got %d", code)
	}
	if stats.TotalUsers != 3 || stats.ActiveUsers != 1 || !stats.TotalHoldings.Equal(decimal.NewFromInt(55)) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestIntegration_RejectedActivationPaysNothing(t *testing.T) {
	env := setup(t)
	mustCreateAccount(t, env, "m", "M", "")
	mustCreateAccount(t, env, "n", "N", "M")
	token := login(t, env)

	var act domain.ActivationRequest
	call(t, env, "POST", "/api/v1/activations", "", api.SubmitRequest{
		AccountID: "n", Amount: decimal.NewFromInt(500), Method: domain.MethodNagad,
		MobileNumber: "01712345678", TrxID: "REJECT01",
	}, &act)

	if code := call(t, env, "POST", "/api/v1/admin/activations/"+act.ID+"/reject", token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 from reject, got %d", code)
	}
	if code := call(t, env, "POST", "/api/v1/admin/activations/"+act.ID+"/approve", token, nil, nil); code != http.StatusConflict {
		t.Errorf("expected 409 approving a rejected activation, got %d", code)
	}
	if got := balance(t, env, "m"); !got.IsZero() {
		t.Errorf("expected no commission, got %s", got)
	}
}

func TestIntegration_ConcurrentApprovalsPayOnce(t *testing.T) {
	env := setup(t)
	mustCreateAccount(t, env, "m", "M", "")
	mustCreateAccount(t, env, "n", "N", "M")
	token := login(t, env)

	var act domain.ActivationRequest
	call(t, env, "POST", "/api/v1/activations", "", api.SubmitRequest{
		AccountID: "n", Amount: decimal.NewFromInt(500), Method: domain.MethodBkash,
		MobileNumber: "01712345678", TrxID: "RACE0001",
	}, &act)

	n := 10
	codes := make([]int, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			codes[i] = call(t, env, "POST", fmt.Sprintf("/api/v1/admin/activations/%s/approve", act.ID), token, nil, nil)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful approval, got %d", ok)
	}
	if got := balance(t, env, "m"); !got.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected commission paid once, got %s", got)
	}
}

func TestIntegration_WithdrawalLifecycle(t *testing.T) {
	env := setup(t)
	mustCreateAccount(t, env, "a", "A", "")
	token := login(t, env)

	if code := call(t, env, "POST", "/api/v1/admin/accounts/a/credit", token,
		api.CreditRequest{Amount: decimal.NewFromInt(300)}, nil); code != http.StatusOK {
		t.Fatalf("expected 200 from credit, got %d", code)
	}

	var pending []*domain.WithdrawalRequest
	var wd domain.WithdrawalRequest
	if code := call(t, env, "POST", "/api/v1/withdrawals", "", api.SubmitRequest{
		AccountID: "a", Amount: decimal.NewFromInt(250), Method: domain.MethodBkash, MobileNumber: "+8801712345678",
	}, &wd); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	call(t, env, "GET", "/api/v1/admin/withdrawals/pending", token, nil, &pending)
	if len(pending) != 1 || pending[0].MobileNumber != "01712345678" {
		t.Fatalf("unexpected pending withdrawals %+v", pending)
	}

	if code := call(t, env, "POST", "/api/v1/admin/withdrawals/"+wd.ID+"/approve", token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 from approve, got %d", code)
	}
	if code := call(t, env, "POST", "/api/v1/admin/withdrawals/"+wd.ID+"/approve", token, nil, nil); code != http.StatusConflict {
		t.Errorf("expected 409 on second approval, got %d", code)
	}
	waitForSMS(t, env, "01712345678", "has been sent")
}

func TestIntegration_FlaggedActivationAlertsAdmin(t *testing.T) {
	env := setup(t)
	mustCreateAccount(t, env, "m", "M", "")
	mustCreateAccount(t, env, "n1", "N1", "M")
	mustCreateAccount(t, env, "n2", "N2", "M")
	token := login(t, env)

	submit := func(accountID string) string {
		var act domain.ActivationRequest
		code := call(t, env, "POST", "/api/v1/activations", "", api.SubmitRequest{
			AccountID: accountID, Amount: decimal.NewFromInt(500), Method: domain.MethodBkash,
			MobileNumber: "01712345678", TrxID: "SAMETRX1",
		}, &act)
		if code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", code)
		}
		return act.ID
	}
	submit("n1")
	second := submit("n2")

	var result processor.ApprovalResult
	if code := call(t, env, "POST", "/api/v1/admin/activations/"+second+"/approve", token, nil, &result); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if result.RiskScore == 0 || len(result.Flags) == 0 {
		t.Fatalf("expected flags on a reused transaction id, got %+v", result)
	}

	if err := env.notify.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	alerts := env.admin.Sent()
	if len(alerts) != 1 || !strings.Contains(alerts[0].Message, second) {
		t.Errorf("expected one admin alert for %s, got %+v", second, alerts)
	}
}
