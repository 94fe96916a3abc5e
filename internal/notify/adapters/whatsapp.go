package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/common"
)

// WhatsAppAdapter sends messages through an external CLI bridge when one
// is configured, and falls back to a local simulation otherwise. The
// simulated mode keeps playbooks runnable in environments without a
// provisioned gateway.
type WhatsAppAdapter struct {
	bridge *CLIAdapter
	logger arbor.ILogger
}

func NewWhatsAppAdapter(command []string, timeout time.Duration, logger arbor.ILogger) *WhatsAppAdapter {
	a := &WhatsAppAdapter{logger: logger}
	if len(command) > 0 {
		a.bridge = NewCLIAdapter("whatsapp_cli", command, timeout, logger)
	}
	return a
}

func (a *WhatsAppAdapter) Name() string {
	if a.bridge != nil {
		return "whatsapp_cli"
	}
	return "whatsapp_sim"
}

func (a *WhatsAppAdapter) Send(ctx context.Context, payload map[string]any) (map[string]any, error) {
	action, _ := payload["action"].(map[string]any)
	to, err := requireString(action, "to", "el campo 'to' es obligatorio para WhatsApp")
	if err != nil {
		return nil, err
	}
	message := ""
	if raw, ok := action["message"]; ok && raw != nil {
		message = fmt.Sprintf("%v", raw)
	}

	if a.bridge != nil {
		return a.bridge.Send(ctx, payload)
	}

	messageID := common.NewMessageID()
	a.logger.Info().
		Str("adapter", a.Name()).
		Str("to", to).
		Str("message_id", messageID).
		Msg(fmt.Sprintf("simulated WhatsApp delivery (%d chars)", len(message)))

	return map[string]any{
		"status":     "simulated",
		"to":         to,
		"message":    message,
		"message_id": messageID,
	}, nil
}
