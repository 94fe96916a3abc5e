package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action is a templated notification directive. The common envelope
// (type, channel, when) is lifted out of the document; every other field
// is channel-specific and kept in Fields for rendering and adapters.
type Action struct {
	Type    string
	Channel string
	When    string
	Fields  map[string]any
}

// UnmarshalYAML decodes an action mapping, splitting the envelope keys
// from the channel-specific payload
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	raw := map[string]any{}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	a.Fields = make(map[string]any, len(raw))
	for key, value := range raw {
		switch key {
		case "type":
			a.Type = stringValue(value)
		case "channel":
			a.Channel = stringValue(value)
		case "when":
			a.When = stringValue(value)
		default:
			a.Fields[key] = value
		}
	}
	return nil
}

// ActionFromMap rebuilds an action from its flattened AsMap form, the
// shape stored in queued job payloads
func ActionFromMap(raw map[string]any) Action {
	action := Action{Fields: make(map[string]any, len(raw))}
	for key, value := range raw {
		switch key {
		case "type":
			action.Type = stringValue(value)
		case "channel":
			action.Channel = stringValue(value)
		case "when":
			action.When = stringValue(value)
		default:
			action.Fields[key] = value
		}
	}
	return action
}

// IsNotify reports whether the action is dispatched by the core
func (a *Action) IsNotify() bool {
	return strings.EqualFold(a.Type, "notify")
}

// ChannelKey returns the lower-cased channel, defaulting to "default"
func (a *Action) ChannelKey() string {
	channel := strings.ToLower(strings.TrimSpace(a.Channel))
	if channel == "" {
		return "default"
	}
	return channel
}

// To returns the rendered recipient field, if any
func (a *Action) To() string {
	return a.StringField("to")
}

// Subject returns the rendered subject field, if any
func (a *Action) Subject() string {
	return a.StringField("subject")
}

// StringField returns the named field coerced to string, empty when absent
func (a *Action) StringField(name string) string {
	value, ok := a.Fields[name]
	if !ok || value == nil {
		return ""
	}
	return stringValue(value)
}

// AsMap flattens the action back to a plain mapping, the shape adapters
// and audit payloads receive
func (a *Action) AsMap() map[string]any {
	out := make(map[string]any, len(a.Fields)+2)
	for key, value := range a.Fields {
		out[key] = value
	}
	out["type"] = a.Type
	out["channel"] = a.Channel
	return out
}

// Clone returns a deep-enough copy: rendering never mutates the original
func (a *Action) Clone() Action {
	fields := make(map[string]any, len(a.Fields))
	for key, value := range a.Fields {
		fields[key] = value
	}
	return Action{Type: a.Type, Channel: a.Channel, When: a.When, Fields: fields}
}

func stringValue(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
