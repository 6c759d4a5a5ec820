package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axelsure/claimflow/pkg/claim"
)

func TestEveryIncidentTypeHasAnAgent(t *testing.T) {
	for _, incident := range claim.IncidentTypes() {
		agent, ok := AgentForIncident(incident)
		require.True(t, ok, incident)
		assert.NotEmpty(t, agent)
	}
	assert.Len(t, Agents(), len(claim.IncidentTypes()))
}

func TestAgentsForSkipsUnboundAgents(t *testing.T) {
	r := New(map[string]string{
		"theft_assistant": "asst_theft",
		"fire_assistant":  "", // configured but empty
	}, nil)

	agents := r.AgentsFor([]string{claim.IncidentTheft, claim.IncidentFire, claim.IncidentAdministrative})
	assert.Equal(t, []string{"theft_assistant"}, agents)
}

func TestAgentsForDeduplicatesAndSorts(t *testing.T) {
	r := New(map[string]string{
		"theft_assistant": "asst_theft",
		"fire_assistant":  "asst_fire",
	}, nil)

	agents := r.AgentsFor([]string{claim.IncidentTheft, claim.IncidentTheft, claim.IncidentFire})
	assert.Equal(t, []string{"fire_assistant", "theft_assistant"}, agents)
}

func TestAgentsForIgnoresUnknownIncidents(t *testing.T) {
	r := New(map[string]string{"theft_assistant": "asst_theft"}, nil)
	assert.Empty(t, r.AgentsFor([]string{"meteor_strike"}))
}

func TestEvaluatorLookup(t *testing.T) {
	eval := Evaluator(func(json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"outcome":"accepted"}`), nil
	})
	r := New(nil, map[string]Evaluator{"theft_assistant": eval})

	got, ok := r.Evaluator("theft_assistant")
	require.True(t, ok)
	raw, err := got(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"accepted"}`, string(raw))

	_, ok = r.Evaluator("fire_assistant")
	assert.False(t, ok)
}
