// Package decision holds the rule-based evaluators that turn a specialist
// agent's structured payload into a claim decision. Each evaluator is a pure
// function: same payload, same decision.
package decision

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Evaluator turns an agent's tool-call payload into a decision document.
type Evaluator func(payload json.RawMessage) (json.RawMessage, error)

// Outcome is the decision document produced by every evaluator.
type Outcome struct {
	Outcome string   `json:"outcome"` // "accepted" or "referred"
	Reasons []string `json:"reasons,omitempty"`
}

const (
	OutcomeAccepted = "accepted"
	OutcomeReferred = "referred"
)

type payload map[string]any

func (p payload) boolean(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p payload) number(key string) float64 {
	v, _ := p[key].(float64)
	return v
}

func (p payload) text(key string) string {
	v, _ := p[key].(string)
	return v
}

type referral struct {
	reason string
	when   func(p payload) bool
}

type rule struct {
	required []string
	refer    []referral
}

func (r rule) evaluator() Evaluator {
	return func(raw json.RawMessage) (json.RawMessage, error) {
		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(err, "payload is not a JSON object")
		}
		for _, field := range r.required {
			if _, ok := p[field]; !ok {
				return nil, errors.Errorf("payload missing required field %q", field)
			}
		}

		out := Outcome{Outcome: OutcomeAccepted}
		for _, ref := range r.refer {
			if ref.when(p) {
				out.Outcome = OutcomeReferred
				out.Reasons = append(out.Reasons, ref.reason)
			}
		}
		return json.Marshal(out)
	}
}

// rules keys every specialist agent to its acceptance criteria. A missing
// required field fails the evaluation; a firing referral downgrades the
// outcome to "referred" and is never fatal.
var rules = map[string]rule{
	"accidental_and_glass_assistant": {
		required: []string{"damage_description", "estimated_cost"},
		refer: []referral{
			{"estimated repair cost exceeds fast-track limit", func(p payload) bool { return p.number("estimated_cost") > 5000 }},
		},
	},
	"fire_assistant": {
		required: []string{"cause_known", "fire_brigade_attended"},
		refer: []referral{
			{"fire brigade did not attend", func(p payload) bool { return !p.boolean("fire_brigade_attended") }},
			{"cause of fire unknown", func(p payload) bool { return !p.boolean("cause_known") }},
		},
	},
	"theft_assistant": {
		required: []string{"reported_to_police", "time_lag_hours"},
		refer: []referral{
			{"theft not reported to police", func(p payload) bool { return !p.boolean("reported_to_police") }},
			{"police report delayed beyond 24 hours", func(p payload) bool { return p.number("time_lag_hours") > 24 }},
		},
	},
	"ancillary_assistant": {
		required: []string{"items_value"},
		refer: []referral{
			{"ancillary items value exceeds cover limit", func(p payload) bool { return p.number("items_value") > 2000 }},
		},
	},
	"third_party_injury_assistant": {
		required: []string{"injury_severity"},
		refer: []referral{
			{"serious or fatal injury requires handler review", func(p payload) bool {
				s := p.text("injury_severity")
				return s == "serious" || s == "fatal"
			}},
		},
	},
	"third_party_property_assistant": {
		required: []string{"liability_accepted", "estimated_cost"},
		refer: []referral{
			{"liability disputed", func(p payload) bool { return !p.boolean("liability_accepted") }},
			{"third-party damage exceeds fast-track limit", func(p payload) bool { return p.number("estimated_cost") > 10000 }},
		},
	},
	"special_liability_assistant": {
		required: []string{"situation"},
		refer: []referral{
			{"special liability situations require manual review", func(payload) bool { return true }},
		},
	},
	"legal_and_statutory_assistant": {
		required: []string{"legal_costs"},
		refer: []referral{
			{"legal costs exceed delegated authority", func(p payload) bool { return p.number("legal_costs") > 5000 }},
		},
	},
	"personal_injury_assistant": {
		required: []string{"medical_report_available"},
		refer: []referral{
			{"no medical report available", func(p payload) bool { return !p.boolean("medical_report_available") }},
		},
	},
	"personal_convenience_assistant": {
		required: []string{"hire_days"},
		refer: []referral{
			{"courtesy provision exceeds policy period", func(p payload) bool { return p.number("hire_days") > 14 }},
		},
	},
	"personal_property_assistant": {
		required: []string{"items_value"},
		refer: []referral{
			{"personal belongings value exceeds cover limit", func(p payload) bool { return p.number("items_value") > 1000 }},
		},
	},
	"territorial_and_usage_assistant": {
		required: []string{"within_territory", "permitted_use"},
		refer: []referral{
			{"incident outside territorial limits", func(p payload) bool { return !p.boolean("within_territory") }},
			{"vehicle use outside policy terms", func(p payload) bool { return !p.boolean("permitted_use") }},
		},
	},
	"general_exceptions_assistant": {
		required: []string{"exception_triggered"},
		refer: []referral{
			{"general policy exception applies", func(p payload) bool { return p.boolean("exception_triggered") }},
		},
	},
	"vehicle_security_assistant": {
		required: []string{"vehicle_secured", "keys_removed"},
		refer: []referral{
			{"vehicle left unsecured", func(p payload) bool { return !p.boolean("vehicle_secured") }},
			{"keys left in vehicle", func(p payload) bool { return !p.boolean("keys_removed") }},
		},
	},
	"administrative_assistant": {
		required: []string{"policy_active"},
		refer: []referral{
			{"policy not active at time of incident", func(p payload) bool { return !p.boolean("policy_active") }},
		},
	},
}

// Evaluators returns the full agent-to-evaluator table.
func Evaluators() map[string]Evaluator {
	out := make(map[string]Evaluator, len(rules))
	for agent, r := range rules {
		out[agent] = r.evaluator()
	}
	return out
}
