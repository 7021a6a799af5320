package auth

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"
)

// Notifier delivers lifecycle mail. Register treats failures as
// best-effort; the reset flow treats them as fatal, so implementations
// must report them.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, link string) error
	SendPasswordResetEmail(ctx context.Context, email, link string) error
}

// MailerConfig carries the SMTP settings for MailNotifier.
type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
}

var mailBodyTemplate = template.Must(template.New("mail").Parse(`<!DOCTYPE html>
<html>
  <head>
    <style>
      body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
      .container { max-width: 600px; margin: 0 auto; padding: 20px; }
      .header { background-color: #3b82f6; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
      .content { background-color: #f9fafb; padding: 20px; }
      .button { display: inline-block; padding: 12px 24px; background-color: #3b82f6; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
      .footer { text-align: center; font-size: 12px; color: #6b7280; padding: 20px; }
    </style>
  </head>
  <body>
    <div class="container">
      <div class="header">
        <h1>{{.Heading}}</h1>
      </div>
      <div class="content">
        <p>Hello,</p>
        <p>{{.Intro}}</p>
        <a href="{{.Link}}" class="button">{{.Action}}</a>
        <p>Or copy and paste this link in your browser:</p>
        <p><small>{{.Link}}</small></p>
        <p>This link will expire in {{.Expiry}}.</p>
        <p>{{.Ignore}}</p>
      </div>
      <div class="footer">
        <p>&copy; {{.AppName}}. All rights reserved.</p>
      </div>
    </div>
  </body>
</html>`))

type mailBodyData struct {
	Heading string
	Intro   string
	Link    string
	Action  string
	Expiry  string
	Ignore  string
	AppName string
}

// MailNotifier is a gomail backed SMTP Notifier.
type MailNotifier struct {
	cfg    MailerConfig
	logger Logger
}

var _ Notifier = (*MailNotifier)(nil)

func NewMailNotifier(cfg MailerConfig) *MailNotifier {
	if cfg.AppName == "" {
		cfg.AppName = "UserFlow"
	}
	return &MailNotifier{
		cfg:    cfg,
		logger: defLogger{},
	}
}

func (n *MailNotifier) WithLogger(logger Logger) *MailNotifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

func (n *MailNotifier) SendVerificationEmail(ctx context.Context, email, link string) error {
	return n.send(ctx, email, "Email Verification - "+n.cfg.AppName, mailBodyData{
		Heading: "Welcome to " + n.cfg.AppName,
		Intro:   "Thank you for registering with " + n.cfg.AppName + ". Please verify your email address by clicking the button below:",
		Link:    link,
		Action:  "Verify Email",
		Expiry:  "24 hours",
		Ignore:  "If you didn't register for this account, please ignore this email.",
		AppName: n.cfg.AppName,
	})
}

func (n *MailNotifier) SendPasswordResetEmail(ctx context.Context, email, link string) error {
	return n.send(ctx, email, "Password Reset - "+n.cfg.AppName, mailBodyData{
		Heading: "Password Reset Request",
		Intro:   "We received a request to reset your password. Click the button below to reset it:",
		Link:    link,
		Action:  "Reset Password",
		Expiry:  "1 hour",
		Ignore:  "If you didn't request a password reset, please ignore this email.",
		AppName: n.cfg.AppName,
	})
}

func (n *MailNotifier) send(ctx context.Context, email, subject string, data mailBodyData) error {
	if n.cfg.Host == "" || n.cfg.From == "" {
		return errors.New("mailer is not configured", errors.CategoryOperation).
			WithTextCode(TextCodeDeliveryFailed)
	}

	if strings.TrimSpace(email) == "" {
		return errors.New("mail recipient is empty", errors.CategoryBadInput)
	}

	var body bytes.Buffer
	if err := mailBodyTemplate.Execute(&body, data); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to render mail body")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body.String())

	d := gomail.NewDialer(n.cfg.Host, n.cfg.Port, n.cfg.Username, n.cfg.Password)

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.CategoryOperation, "mail delivery interrupted").
			WithTextCode(TextCodeDeliveryFailed)
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, errors.CategoryOperation, "failed to deliver mail").
				WithTextCode(TextCodeDeliveryFailed).
				WithMetadata(map[string]any{
					"subject": subject,
				})
		}
	}

	n.logger.Info("mail delivered to %s: %s", email, subject)

	return nil
}
