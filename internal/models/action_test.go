package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestActionUnmarshalSplitsEnvelope(t *testing.T) {
	doc := `
type: notify
channel: Email
when: "{{ rule_results.progreso_bajo }}"
to: "{{ row.email }}"
subject: "Recordatorio"
template: recordatorio
`
	var action Action
	require.NoError(t, yaml.Unmarshal([]byte(doc), &action))

	assert.Equal(t, "notify", action.Type)
	assert.Equal(t, "Email", action.Channel)
	assert.Equal(t, "{{ rule_results.progreso_bajo }}", action.When)
	assert.Equal(t, "{{ row.email }}", action.Fields["to"])
	assert.Equal(t, "recordatorio", action.Fields["template"])

	// Envelope keys never leak into Fields
	assert.NotContains(t, action.Fields, "type")
	assert.NotContains(t, action.Fields, "channel")
	assert.NotContains(t, action.Fields, "when")
}

func TestActionChannelKey(t *testing.T) {
	assert.Equal(t, "email", (&Action{Channel: " Email "}).ChannelKey())
	assert.Equal(t, "default", (&Action{}).ChannelKey())
}

func TestActionIsNotify(t *testing.T) {
	assert.True(t, (&Action{Type: "Notify"}).IsNotify())
	assert.False(t, (&Action{Type: "webhook"}).IsNotify())
}

func TestActionAsMapRoundTrip(t *testing.T) {
	action := Action{
		Type:    "notify",
		Channel: "email",
		When:    "true",
		Fields:  map[string]any{"to": "ana@x.es", "subject": "Hola"},
	}

	flat := action.AsMap()
	assert.Equal(t, "notify", flat["type"])
	assert.Equal(t, "email", flat["channel"])
	assert.Equal(t, "ana@x.es", flat["to"])

	rebuilt := ActionFromMap(flat)
	assert.Equal(t, action.Type, rebuilt.Type)
	assert.Equal(t, action.Channel, rebuilt.Channel)
	assert.Equal(t, "ana@x.es", rebuilt.Fields["to"])
	// AsMap drops the guard: queued payloads are already rendered
	assert.Empty(t, rebuilt.When)
}

func TestActionCloneIsIndependent(t *testing.T) {
	action := Action{Type: "notify", Fields: map[string]any{"to": "a@x.es"}}
	clone := action.Clone()
	clone.Fields["to"] = "b@x.es"

	assert.Equal(t, "a@x.es", action.Fields["to"])
}

func TestMapJobStatus(t *testing.T) {
	assert.Equal(t, JobQueued, MapJobStatus(StatusQueued))
	assert.Equal(t, JobDryRun, MapJobStatus(StatusDryRun))
	assert.Equal(t, JobPaused, MapJobStatus(StatusQuietHours))
	assert.Equal(t, JobSucceeded, MapJobStatus(StatusSent))
	assert.Equal(t, JobFailed, MapJobStatus(StatusError))
}
