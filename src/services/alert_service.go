// backend/src/services/alert_service.go
package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/taxdeclaration/backend/src/config"
	"github.com/username/taxdeclaration/backend/src/logger"
)

// AlertService notifies operators about repeated data source failures.
type AlertService interface {
	SendDataSourceAlert(failures int, lastErr error) error
}

func NewAlertService() AlertService {
	if config.Cfg == nil {
		logger.Get().Error("Configuration (config.Cfg) is nil. Alert service will default to mock.")
		return &MockAlertService{}
	}

	provider := strings.ToLower(config.Cfg.AlertProvider)
	logger.Get().Info("Initializing alert service", "provider", provider)

	if provider != "mock" && config.Cfg.AlertRecipient == "" {
		logger.Get().Warn("ALERT_RECIPIENT missing. Falling back to MockAlertService.")
		return &MockAlertService{}
	}

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.Get().Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockAlertService.")
			return &MockAlertService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.Get().Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunAlertService{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
			recipient:   config.Cfg.AlertRecipient,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.Get().Warn("SMTP configuration incomplete. Falling back to MockAlertService.")
			return &MockAlertService{}
		}
		return &SMTPAlertService{
			SMTPServer:   config.Cfg.SMTPServer,
			SMTPPort:     config.Cfg.SMTPPort,
			SMTPUser:     config.Cfg.SMTPUser,
			SMTPPassword: config.Cfg.SMTPPassword,
			SenderEmail:  config.Cfg.SenderEmail,
			Recipient:    config.Cfg.AlertRecipient,
		}
	default:
		logger.Get().Info("Defaulting to MockAlertService.")
		return &MockAlertService{}
	}
}

func alertSubject(failures int) string {
	return fmt.Sprintf("[Declarações IR] %d consecutive data source failures", failures)
}

func alertBody(failures int, lastErr error) string {
	return fmt.Sprintf(`The declaration service failed to read the workbook %d times in a row.

Last error: %v
Time: %s

Check that the workbook exists, is not locked by another program and still has the expected sheets.`,
		failures, lastErr, time.Now().Format(time.RFC3339))
}

type SMTPAlertService struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
	Recipient    string
}

func (s *SMTPAlertService) SendDataSourceAlert(failures int, lastErr error) error {
	header := make(map[string]string)
	header["From"] = s.SenderEmail
	header["To"] = s.Recipient
	header["Subject"] = alertSubject(failures)
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + alertBody(failures, lastErr)
	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	err := smtp.SendMail(addr, auth, s.SenderEmail, []string{s.Recipient}, []byte(message))
	if err != nil {
		logger.Get().Error("Failed to send alert via SMTP", "error", err, "to", s.Recipient)
		return fmt.Errorf("failed to send alert via SMTP: %w", err)
	}
	logger.Get().Info("Alert sent successfully via SMTP", "to", s.Recipient)
	return nil
}

type MailgunAlertService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
	recipient   string
}

func (s *MailgunAlertService) SendDataSourceAlert(failures int, lastErr error) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	message := s.mg.NewMessage(from, alertSubject(failures), alertBody(failures, lastErr), s.recipient)
	message.AddTag("data-source-alert")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.Get().Error("Failed to send alert via Mailgun", "error", err, "to", s.recipient, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.Get().Info("Alert sent successfully via Mailgun", "to", s.recipient, "id", id)
	return nil
}

// MockAlertService logs alerts and remembers them for inspection.
type MockAlertService struct {
	mu   sync.Mutex
	Sent []string
}

func (m *MockAlertService) SendDataSourceAlert(failures int, lastErr error) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, alertSubject(failures))
	m.mu.Unlock()
	logger.Get().Warn("MOCK ALERT", "subject", alertSubject(failures), "lastError", lastErr)
	return nil
}

// SentCount reports how many alerts the mock has recorded.
func (m *MockAlertService) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// FailureTracker counts consecutive data source failures and fires one alert
// each time the count reaches the threshold. A success resets the count.
type FailureTracker struct {
	mu        sync.Mutex
	alerts    AlertService
	threshold int
	count     int
}

func NewFailureTracker(alerts AlertService, threshold int) *FailureTracker {
	if threshold < 1 {
		threshold = 1
	}
	return &FailureTracker{alerts: alerts, threshold: threshold}
}

func (t *FailureTracker) RecordFailure(err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.count++
	count := t.count
	t.mu.Unlock()

	logger.Get().Error("Data source failure", "consecutiveFailures", count, "error", err)
	if count != t.threshold || t.alerts == nil {
		return
	}
	go func() {
		if sendErr := t.alerts.SendDataSourceAlert(count, err); sendErr != nil {
			logger.Get().Error("Could not deliver operator alert", "error", sendErr)
		}
	}()
}

func (t *FailureTracker) RecordSuccess() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.count = 0
	t.mu.Unlock()
}

// Consecutive returns the current failure streak.
func (t *FailureTracker) Consecutive() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
