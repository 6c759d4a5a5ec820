package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/claim"
	"github.com/axelsure/claimflow/pkg/llm"
	"github.com/axelsure/claimflow/pkg/logger"
)

type triageResult struct {
	IncidentTypes       []string `json:"incident_types" jsonschema:"description=Incident category keys identified in the conversation"`
	IncidentDescription string   `json:"incident_description" jsonschema:"description=Free-text summary of the incident"`
}

var triageSchema = llm.GenerateSchema[triageResult]()

const triageInstruction = `You are the Triage Assistant for an automotive-insurance claim system. Read the conversation and identify every applicable incident category from this set:

accidental_and_glass_damage, fire, theft, ancillary_property, third_party_injury, third_party_property, special_liability, legal_and_statutory, personal_injury, personal_convenience, personal_property, territorial_usage, general_exceptions, vehicle_security, administrative

Return exactly one JSON object matching the schema, with the identified incident_types and a concise incident_description.`

// triage classifies the conversation into incident types and persists the
// result onto the claim. Unknown categories returned by the model are
// dropped; an empty result is an error so the stage retries.
func (o *Orchestrator) triage(ctx context.Context, claimID string) error {
	cctx, err := o.store.LoadContext(claimID)
	if err != nil {
		return err
	}
	history, err := json.Marshal(map[string]any{"conversation_context": cctx.ConversationHistory})
	if err != nil {
		return errors.Wrap(err, "failed to encode conversation")
	}

	var result triageResult
	if err := o.llm.Respond(ctx, triageInstruction, []llm.ContentBlock{llm.TextBlock(string(history))}, "triage_incident", triageSchema, &result); err != nil {
		return errors.Wrap(err, "triage call failed")
	}

	var incidents []string
	for _, key := range result.IncidentTypes {
		if claim.KnownIncidentType(key) {
			incidents = append(incidents, key)
		} else {
			logger.G(ctx).WithField("incident_type", key).Warn("triage returned unknown incident type")
		}
	}
	if len(incidents) == 0 {
		return errors.New("triage identified no known incident types")
	}

	_, err = o.store.UpdateClaim(claimID, func(c *claim.Claim) error {
		c.IncidentTypes = incidents
		c.IncidentDescription = result.IncidentDescription
		return nil
	})
	return err
}
