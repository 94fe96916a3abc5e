package adapters

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/common"
	"github.com/EloyM96/avisor/internal/rules"
)

// SMTPTransport delivers a fully built RFC 5322 message. Injected so
// tests never open sockets.
type SMTPTransport func(ctx context.Context, from string, to []string, message []byte) error

// EmailAdapter renders text and optional HTML templates and delivers
// them through an SMTP server with STARTTLS and AUTH when configured
type EmailAdapter struct {
	config       common.SMTPConfig
	templatesDir string
	transport    SMTPTransport
	logger       arbor.ILogger
}

// NewEmailAdapter creates an email adapter using the real SMTP transport
func NewEmailAdapter(config common.SMTPConfig, templatesDir string, logger arbor.ILogger) *EmailAdapter {
	adapter := &EmailAdapter{
		config:       config,
		templatesDir: templatesDir,
		logger:       logger,
	}
	adapter.transport = adapter.smtpSend
	return adapter
}

// WithTransport swaps the SMTP transport (tests)
func (a *EmailAdapter) WithTransport(transport SMTPTransport) *EmailAdapter {
	a.transport = transport
	return a
}

// Name implements interfaces.Adapter
func (a *EmailAdapter) Name() string {
	return "email_smtp"
}

// Send renders <template>.txt plus optional <template>.html and delivers
// the message. Missing "template" or "to" fields are validation errors.
func (a *EmailAdapter) Send(ctx context.Context, payload map[string]any) (map[string]any, error) {
	action, _ := payload["action"].(map[string]any)
	if action == nil {
		action = map[string]any{}
	}

	templateName, err := requireString(action, "template", "la acción de email necesita la clave 'template'")
	if err != nil {
		return nil, err
	}
	recipient, err := requireString(action, "to", "la acción de email necesita la clave 'to' con el destinatario")
	if err != nil {
		return nil, err
	}

	renderCtx := a.renderContext(payload, action)

	subject, err := a.renderSubject(action, payload, renderCtx)
	if err != nil {
		return nil, err
	}

	textBody, err := a.renderFile(templateName+".txt", renderCtx)
	if err != nil {
		return nil, err
	}

	htmlBody := ""
	htmlPath := filepath.Join(a.templatesDir, templateName+".html")
	if _, statErr := os.Stat(htmlPath); statErr == nil {
		htmlBody, err = a.renderFile(templateName+".html", renderCtx)
		if err != nil {
			return nil, err
		}
	}

	from := ""
	if raw, ok := action["from"]; ok && raw != nil {
		from = strings.TrimSpace(fmt.Sprintf("%v", raw))
	}
	if from == "" {
		from = a.config.FromEmail
	}
	if from == "" {
		from = a.config.Username
	}

	message := buildMessage(from, recipient, subject, textBody, htmlBody)

	sendCtx, cancel := context.WithTimeout(ctx, a.config.AdapterTimeout())
	defer cancel()
	if err := a.transport(sendCtx, from, []string{recipient}, message); err != nil {
		return nil, fmt.Errorf("fallo SMTP: %w", err)
	}

	a.logger.Info().
		Str("to", recipient).
		Str("template", templateName).
		Msg("Email delivered")

	return map[string]any{
		"status":   "sent",
		"subject":  subject,
		"to":       recipient,
		"template": templateName,
	}, nil
}

func (a *EmailAdapter) renderContext(payload, action map[string]any) map[string]any {
	renderCtx := map[string]any{
		"playbook": payload["playbook"],
		"action":   action,
		"context":  payload["context"],
	}
	// Expose row and rule_results at top level for template convenience
	if context, ok := payload["context"].(map[string]any); ok {
		for key, value := range context {
			renderCtx[key] = value
		}
	}
	return renderCtx
}

func (a *EmailAdapter) renderSubject(action, payload, renderCtx map[string]any) (string, error) {
	if raw, ok := action["subject"]; ok && raw != nil {
		if text := strings.TrimSpace(fmt.Sprintf("%v", raw)); text != "" {
			rendered, err := rules.RenderTemplate(text, renderCtx)
			if err != nil {
				return "", fmt.Errorf("error al renderizar el asunto: %w", err)
			}
			return strings.TrimSpace(rendered), nil
		}
	}
	if playbook, ok := payload["playbook"].(string); ok && playbook != "" {
		return "Notificación desde " + playbook, nil
	}
	return "Notificación desde Avisor", nil
}

func (a *EmailAdapter) renderFile(name string, renderCtx map[string]any) (string, error) {
	path := filepath.Join(a.templatesDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("plantilla no encontrada: %s: %w", name, err)
	}
	rendered, err := rules.RenderTemplate(string(data), renderCtx)
	if err != nil {
		return "", fmt.Errorf("error al renderizar la plantilla %s: %w", name, err)
	}
	return rendered, nil
}

// buildMessage assembles the wire message; multipart/alternative when an
// HTML body is present
func buildMessage(from, to, subject, textBody, htmlBody string) []byte {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))

	if htmlBody != "" {
		boundary := strings.ReplaceAll(uuid.New().String(), "-", "")
		msg.WriteString("MIME-Version: 1.0\r\n")
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(textBody)
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(htmlBody)
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(textBody)
	}

	return []byte(msg.String())
}

// smtpSend is the real transport: dial with deadline, STARTTLS when
// configured, AUTH when credentials are present
func (a *EmailAdapter) smtpSend(ctx context.Context, from string, to []string, message []byte) error {
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, a.config.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if a.config.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: a.config.Host}); err != nil {
			return err
		}
	}

	if a.config.Username != "" {
		auth := smtp.PlainAuth("", a.config.Username, a.config.Password, a.config.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return err
		}
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return client.Quit()
}
