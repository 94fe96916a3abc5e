package adapters

import (
	"fmt"
	"strings"

	"github.com/EloyM96/avisor/internal/interfaces"
)

// ValidationError marks an action missing a field the adapter requires
// (for example an email action without "to"). Surfaced to callers as a
// delivery failure after auditing.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Registry maps channel names to adapters. Keys are case-insensitive
// and the registry is read-only after construction.
type Registry struct {
	adapters map[string]interfaces.Adapter
}

// NewRegistry creates an adapter registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]interfaces.Adapter)}
}

// Register binds an adapter to a channel name
func (r *Registry) Register(channel string, adapter interfaces.Adapter) *Registry {
	r.adapters[strings.ToLower(channel)] = adapter
	return r
}

// Get resolves the adapter for a channel
func (r *Registry) Get(channel string) (interfaces.Adapter, bool) {
	adapter, ok := r.adapters[strings.ToLower(channel)]
	return adapter, ok
}

// Label returns the adapter name for a channel, or the channel itself
// when nothing is registered (used on audit rows for missing adapters)
func (r *Registry) Label(channel string) string {
	if adapter, ok := r.Get(channel); ok {
		return adapter.Name()
	}
	return channel
}

// Channels lists the registered channel names
func (r *Registry) Channels() []string {
	channels := make([]string, 0, len(r.adapters))
	for channel := range r.adapters {
		channels = append(channels, channel)
	}
	return channels
}

// requireString extracts a mandatory string field from a payload mapping
func requireString(mapping map[string]any, key, reason string) (string, error) {
	value, ok := mapping[key]
	if !ok || value == nil {
		return "", &ValidationError{Reason: reason}
	}
	text := strings.TrimSpace(fmt.Sprintf("%v", value))
	if text == "" {
		return "", &ValidationError{Reason: reason}
	}
	return text, nil
}
