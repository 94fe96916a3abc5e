package interfaces

import "context"

// Adapter is a channel-specific delivery unit. Send receives the uniform
// notification payload and returns a JSON-like response mapping; any error
// signals delivery failure.
type Adapter interface {
	Name() string
	Send(ctx context.Context, payload map[string]any) (map[string]any, error)
}
