package decision

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axelsure/claimflow/pkg/registry"
)

func decode(t *testing.T, raw json.RawMessage) Outcome {
	t.Helper()
	var out Outcome
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEveryAgentHasAnEvaluator(t *testing.T) {
	evaluators := Evaluators()
	for _, agent := range registry.Agents() {
		assert.Contains(t, evaluators, agent)
	}
	assert.Len(t, evaluators, len(registry.Agents()))
}

func TestTheftPromptReport(t *testing.T) {
	eval := Evaluators()["theft_assistant"]

	raw, err := eval(json.RawMessage(`{"reported_to_police":true,"time_lag_hours":2}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, decode(t, raw).Outcome)
}

func TestTheftLateReport(t *testing.T) {
	eval := Evaluators()["theft_assistant"]

	raw, err := eval(json.RawMessage(`{"reported_to_police":true,"time_lag_hours":72}`))
	require.NoError(t, err)

	out := decode(t, raw)
	assert.Equal(t, OutcomeReferred, out.Outcome)
	assert.Contains(t, out.Reasons, "police report delayed beyond 24 hours")
}

func TestTheftUnreported(t *testing.T) {
	eval := Evaluators()["theft_assistant"]

	raw, err := eval(json.RawMessage(`{"reported_to_police":false,"time_lag_hours":2}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReferred, decode(t, raw).Outcome)
}

func TestMissingRequiredField(t *testing.T) {
	eval := Evaluators()["theft_assistant"]

	_, err := eval(json.RawMessage(`{"reported_to_police":true}`))
	assert.Error(t, err)
}

func TestMalformedPayload(t *testing.T) {
	eval := Evaluators()["fire_assistant"]

	_, err := eval(json.RawMessage(`"not an object"`))
	assert.Error(t, err)
}

func TestSpecialLiabilityAlwaysReferred(t *testing.T) {
	eval := Evaluators()["special_liability_assistant"]

	raw, err := eval(json.RawMessage(`{"situation":"vehicle used as taxi"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReferred, decode(t, raw).Outcome)
}

func TestVehicleSecurityMultipleReasons(t *testing.T) {
	eval := Evaluators()["vehicle_security_assistant"]

	raw, err := eval(json.RawMessage(`{"vehicle_secured":false,"keys_removed":false}`))
	require.NoError(t, err)

	out := decode(t, raw)
	assert.Equal(t, OutcomeReferred, out.Outcome)
	assert.Len(t, out.Reasons, 2)
}

func TestDeterministic(t *testing.T) {
	eval := Evaluators()["administrative_assistant"]
	payload := json.RawMessage(`{"policy_active":true}`)

	first, err := eval(payload)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := eval(payload)
		require.NoError(t, err)
		assert.JSONEq(t, string(first), string(again))
	}
}
