package heartbeat

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/mnemos/mnemos/pkg/domain"
	"github.com/mnemos/mnemos/pkg/log"
)

// LogNotifier writes the alert to the structured logger instead of
// delivering it anywhere, the default for local/dev deployments that
// haven't configured an SMTP relay.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, ownerID string, level domain.EscalationLevel, message string) error {
	log.WithComponent("heartbeat").Warn().
		Str("owner_id", ownerID).
		Str("level", string(level)).
		Msg(message)
	return nil
}

// SMTPConfig configures delivery of escalation alerts over SMTP. Standard
// net/smtp is used deliberately here — see DESIGN.md — no third-party SMTP
// client appears anywhere in the retrieval pack to ground an alternative
// on.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SMTPNotifier sends one plain-text email per alert via cfg's relay.
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier constructs a notifier bound to cfg.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) Notify(_ context.Context, ownerID string, level domain.EscalationLevel, message string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	body := fmt.Sprintf("Subject: Mnemos escalation alert: %s\r\n\r\n%s\r\n", level, message)
	if err := smtp.SendMail(addr, auth, n.cfg.From, n.cfg.To, []byte(body)); err != nil {
		return fmt.Errorf("heartbeat: send escalation email for owner %s: %w", ownerID, err)
	}
	return nil
}
