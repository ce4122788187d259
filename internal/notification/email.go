package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

const otpExpiryMinutes = 10

// EmailGateway delivers OTP codes over SMTP (implicit TLS). Delivery is
// fire-and-forget from the caller's perspective: when the gateway is not
// configured it logs and skips, and callers must not fail the enclosing
// operation on a send error.
type EmailGateway struct {
	host     string
	port     string
	username string
	password string
	from     string
	enabled  bool
	log      zerolog.Logger
}

// Config carries SMTP settings. Enabled only when host and username are set.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// NewEmailGateway creates an SMTP-backed gateway.
func NewEmailGateway(cfg Config, log zerolog.Logger) *EmailGateway {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	return &EmailGateway{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     from,
		enabled:  cfg.Host != "" && cfg.Username != "",
		log:      log,
	}
}

// SendOTPEmail renders and delivers a login code for the shop.
func (g *EmailGateway) SendOTPEmail(ctx context.Context, email, code, shopName string) error {
	if !g.enabled {
		g.log.Warn().Str("email", email).Msg("SMTP not configured, skipping OTP email")
		return nil
	}

	template := RenderOTPEmail(code, shopName, otpExpiryMinutes)
	if err := g.send(ctx, email, template.Subject, template.HTML); err != nil {
		return fmt.Errorf("failed to send otp email: %w", err)
	}

	g.log.Info().Str("email", email).Msg("OTP email sent")
	return nil
}

func (g *EmailGateway) send(ctx context.Context, to, subject, body string) error {
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", g.from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body,
	)

	serverAddr := g.host + ":" + g.port

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: g.host}}
	conn, err := dialer.DialContext(ctx, "tcp", serverAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, g.host)
	if err != nil {
		return err
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", g.username, g.password, g.host)
	if err := client.Auth(auth); err != nil {
		return err
	}

	if err := client.Mail(g.from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
