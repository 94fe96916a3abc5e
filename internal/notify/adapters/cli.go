package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// CLIAdapter delivers notifications by invoking an external command.
// The payload is written to the command's stdin as JSON and the
// command's stdout, which must be empty or a JSON object, becomes the
// adapter response.
type CLIAdapter struct {
	name    string
	command []string
	timeout time.Duration
	logger  arbor.ILogger
}

func NewCLIAdapter(name string, command []string, timeout time.Duration, logger arbor.ILogger) *CLIAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CLIAdapter{
		name:    name,
		command: command,
		timeout: timeout,
		logger:  logger,
	}
}

func (a *CLIAdapter) Name() string {
	return a.name
}

func (a *CLIAdapter) Send(ctx context.Context, payload map[string]any) (map[string]any, error) {
	if len(a.command) == 0 {
		return nil, &ValidationError{Reason: "el adaptador CLI no tiene comando configurado"}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serializing CLI payload: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.command[0], a.command[1:]...)
	cmd.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("el comando '%s' superó el tiempo máximo de %s", a.command[0], a.timeout)
	}
	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = runErr.Error()
		}
		return nil, fmt.Errorf("el comando '%s' terminó con error: %s", a.command[0], detail)
	}

	a.logger.Debug().
		Str("adapter", a.name).
		Str("command", a.command[0]).
		Str("elapsed", elapsed.String()).
		Msg("CLI command completed")

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return map[string]any{}, nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("el comando '%s' devolvió una salida que no es un objeto JSON: %s", a.command[0], out)
	}
	return parsed, nil
}
