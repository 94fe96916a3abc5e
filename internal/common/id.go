package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewJobID generates a unique notification job ID
// Format: 32 lowercase hex characters, stable across dispatcher and workers
func NewJobID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewMessageID generates a simulated channel message ID with the "cli-" prefix
func NewMessageID() string {
	return "cli-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
