package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EloyM96/avisor/internal/models"
)

func sampleContext() map[string]any {
	return RenderContext(
		map[string]any{"email": "ana@x.es", "full_name": "Ana García"},
		map[string]bool{"progreso_bajo": true, "sin_telefono": false},
	)
}

func TestRenderContextShape(t *testing.T) {
	ctx := sampleContext()

	row, ok := ctx["row"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ana@x.es", row["email"])

	results, ok := ctx["rule_results"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, results["progreso_bajo"])
}

func TestRenderActionExpandsStringFields(t *testing.T) {
	action := models.Action{
		Type:    "notify",
		Channel: "email",
		When:    "{{ rule_results.progreso_bajo }}",
		Fields: map[string]any{
			"to":      "{{ row.email }}",
			"subject": "Hola {{ row.full_name }}",
			"retries": 3,
		},
	}

	rendered, err := RenderAction(action, sampleContext())
	require.NoError(t, err)

	assert.Equal(t, "ana@x.es", rendered.Fields["to"])
	assert.Equal(t, "Hola Ana García", rendered.Fields["subject"])
	assert.Equal(t, 3, rendered.Fields["retries"])

	// Input action is untouched
	assert.Equal(t, "{{ row.email }}", action.Fields["to"])
}

func TestShouldDispatch(t *testing.T) {
	ctx := sampleContext()

	tests := []struct {
		name string
		when string
		want bool
	}{
		{"empty guard passes", "", true},
		{"blank guard passes", "   ", true},
		{"braces only passes", "{{ }}", true},
		{"true rule", "{{ rule_results.progreso_bajo }}", true},
		{"false rule", "{{ rule_results.sin_telefono }}", false},
		{"bare expression", "rule_results.progreso_bajo", true},
		{"literal no", `"no"`, false},
		{"literal yes", `"yes"`, true},
		{"literal zero string", `"0"`, false},
		{"literal one string", `"1"`, true},
		{"truthy string", `"cualquier cosa"`, true},
		{"empty string", `""`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShouldDispatch(tt.when, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldDispatchPropagatesErrors(t *testing.T) {
	_, err := ShouldDispatch("{{ unknown_fn(1) }}", sampleContext())
	assert.Error(t, err)
}

func TestSerializable(t *testing.T) {
	out := Serializable(map[string]any{
		"nested": map[string]any{"n": 1.5},
		"list":   []any{"a", 2.0},
		"other":  struct{ X int }{X: 1},
	})

	tree, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.5, tree["nested"].(map[string]any)["n"])
	assert.Equal(t, "a", tree["list"].([]any)[0])
	assert.IsType(t, "", tree["other"])
}
