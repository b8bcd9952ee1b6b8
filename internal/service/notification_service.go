package service

import (
	"context"
	"fmt"
	"log/slog"
	"referral_ledger/internal/domain"
	"strings"
	"sync"
	"time"
)

type NotificationType string

const (
	NotificationSMS   NotificationType = "sms"
	NotificationAdmin NotificationType = "admin"
)

// NotificationService delivers account-holder SMS and admin alerts from a
// fixed pool of workers. Enqueueing never waits on delivery.
type NotificationService struct {
	smsService   SMSService
	adminService AdminService
	adminPhone   string
	messageQueue chan NotificationMessage
	workers      int
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger
}

type NotificationMessage struct {
	Type      NotificationType
	Recipient string
	Subject   string
	Message   string
	Priority  int
	Metadata  map[string]string
	CreatedAt time.Time
}

type SMSService interface {
	SendSMS(to, message string) error
}

type AdminService interface {
	SendAlert(recipient, subject, message string) error
}

func NewNotificationService(
	smsService SMSService,
	adminService AdminService,
	adminPhone string,
	workers int,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	service := &NotificationService{
		smsService:   smsService,
		adminService: adminService,
		adminPhone:   adminPhone,
		messageQueue: make(chan NotificationMessage, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

func (s *NotificationService) NotifyActivation(ctx context.Context, req *domain.ActivationRequest) error {
	var message string

	switch req.Status {
	case domain.StatusApproved:
		message = fmt.Sprintf("Your account has been activated. Payment of %s Tk (TrxID %s) was verified.", req.Amount, req.TrxID)
	case domain.StatusRejected:
		message = fmt.Sprintf("Your activation payment of %s Tk (TrxID %s) could not be verified.", req.Amount, req.TrxID)
	default:
		message = fmt.Sprintf("Your activation request of %s Tk is %s.", req.Amount, req.Status)
	}

	return s.enqueue(ctx, NotificationMessage{
		Type:      NotificationSMS,
		Recipient: req.MobileNumber,
		Subject:   "Activation " + string(req.Status),
		Message:   message,
		Priority:  5,
		Metadata: map[string]string{
			"activation_id": req.ID,
			"account_id":    req.AccountID,
		},
		CreatedAt: time.Now(),
	})
}

func (s *NotificationService) NotifyWithdrawal(ctx context.Context, req *domain.WithdrawalRequest) error {
	message := fmt.Sprintf("Your withdrawal of %s Tk via %s is %s.", req.Amount, req.Method, req.Status)
	if req.Status == domain.StatusApproved {
		message = fmt.Sprintf("Your withdrawal of %s Tk has been sent to %s via %s.", req.Amount, req.MobileNumber, req.Method)
	}

	return s.enqueue(ctx, NotificationMessage{
		Type:      NotificationSMS,
		Recipient: req.MobileNumber,
		Subject:   "Withdrawal " + string(req.Status),
		Message:   message,
		Priority:  5,
		Metadata: map[string]string{
			"withdrawal_id": req.ID,
			"account_id":    req.AccountID,
		},
		CreatedAt: time.Now(),
	})
}

// AlertFlagged tells the admin that an approved activation carried risk flags.
func (s *NotificationService) AlertFlagged(ctx context.Context, activationID string, score int, flags []string) error {
	message := fmt.Sprintf("Activation %s approved with risk score %d\nFlags: %s",
		activationID, score, strings.Join(flags, ", "))

	return s.enqueue(ctx, NotificationMessage{
		Type:      NotificationAdmin,
		Recipient: s.adminPhone,
		Subject:   "Flagged activation",
		Message:   message,
		Priority:  10,
		Metadata: map[string]string{
			"activation_id": activationID,
			"risk_score":    fmt.Sprintf("%d", score),
		},
		CreatedAt: time.Now(),
	})
}

// SendCode delivers a one-time login code by SMS.
func (s *NotificationService) SendCode(ctx context.Context, phone, code string) error {
	return s.enqueue(ctx, NotificationMessage{
		Type:      NotificationSMS,
		Recipient: phone,
		Subject:   "Login code",
		Message:   fmt.Sprintf("Your admin login code is %s", code),
		Priority:  10,
		CreatedAt: time.Now(),
	})
}

func (s *NotificationService) enqueue(ctx context.Context, msg NotificationMessage) error {
	select {
	case <-s.shutdownChan:
		return fmt.Errorf("notification service is shut down")
	default:
	}

	select {
	case s.messageQueue <- msg:
		s.logger.Info("Notification queued",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.String("subject", msg.Subject))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	s.logger.Info("Notification worker started", slog.Int("worker_id", id))

	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, id)
		case <-s.shutdownChan:
			s.drain(id)
			s.logger.Info("Notification worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

// drain delivers whatever is still queued at shutdown.
func (s *NotificationService) drain(workerID int) {
	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, workerID)
		default:
			return
		}
	}
}

func (s *NotificationService) processNotification(msg NotificationMessage, workerID int) {
	startTime := time.Now()
	var err error

	switch msg.Type {
	case NotificationSMS:
		err = s.smsService.SendSMS(msg.Recipient, msg.Message)
	case NotificationAdmin:
		err = s.adminService.SendAlert(msg.Recipient, msg.Subject, msg.Message)
	default:
		err = fmt.Errorf("unknown notification type: %s", msg.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Failed to send notification",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	} else {
		s.logger.Info("Notification sent successfully",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	}
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSMSService writes messages to the log instead of a gateway.
type LogSMSService struct {
	Logger *slog.Logger
}

func (l LogSMSService) SendSMS(to, message string) error {
	l.Logger.Info("SMS", slog.String("to", to), slog.String("message", message))
	return nil
}

func (l LogSMSService) SendAlert(recipient, subject, message string) error {
	l.Logger.Warn("Admin alert",
		slog.String("recipient", recipient),
		slog.String("subject", subject),
		slog.String("message", message))
	return nil
}

type SentMessage struct {
	To      string
	Subject string
	Message string
}

type MockSMSService struct {
	mu      sync.Mutex
	SentSMS []SentMessage
}

func (m *MockSMSService) SendSMS(to, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentSMS = append(m.SentSMS, SentMessage{To: to, Message: message})
	return nil
}

func (m *MockSMSService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentSMS...)
}

type MockAdminService struct {
	mu     sync.Mutex
	Alerts []SentMessage
}

func (m *MockAdminService) SendAlert(recipient, subject, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, SentMessage{To: recipient, Subject: subject, Message: message})
	return nil
}

func (m *MockAdminService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Alerts...)
}
