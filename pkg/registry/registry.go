// Package registry binds incident types to specialist agents and each agent
// to its assistant id and rule evaluator. Triage output flows through this
// table to decide which agents a claim enlists.
package registry

import (
	"encoding/json"
	"sort"

	"github.com/axelsure/claimflow/pkg/claim"
)

// Evaluator turns an agent's tool-call payload into a decision document.
// Signature matches decision.Evaluator; the binding site converts.
type Evaluator func(payload json.RawMessage) (json.RawMessage, error)

// incidentToAgent keys triage categories to their specialist agents.
var incidentToAgent = map[string]string{
	claim.IncidentAccidentalAndGlass:  "accidental_and_glass_assistant",
	claim.IncidentFire:                "fire_assistant",
	claim.IncidentTheft:               "theft_assistant",
	claim.IncidentAncillaryProperty:   "ancillary_assistant",
	claim.IncidentThirdPartyInjury:    "third_party_injury_assistant",
	claim.IncidentThirdPartyProperty:  "third_party_property_assistant",
	claim.IncidentSpecialLiability:    "special_liability_assistant",
	claim.IncidentLegalAndStatutory:   "legal_and_statutory_assistant",
	claim.IncidentPersonalInjury:      "personal_injury_assistant",
	claim.IncidentPersonalConvenience: "personal_convenience_assistant",
	claim.IncidentPersonalProperty:    "personal_property_assistant",
	claim.IncidentTerritorialUsage:    "territorial_and_usage_assistant",
	claim.IncidentGeneralExceptions:   "general_exceptions_assistant",
	claim.IncidentVehicleSecurity:     "vehicle_security_assistant",
	claim.IncidentAdministrative:      "administrative_assistant",
}

// Agents returns every specialist agent name, sorted.
func Agents() []string {
	agents := make([]string, 0, len(incidentToAgent))
	for _, agent := range incidentToAgent {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}

// AgentForIncident maps a triage category to its specialist agent.
func AgentForIncident(incident string) (string, bool) {
	agent, ok := incidentToAgent[incident]
	return agent, ok
}

// Registry carries the per-deployment bindings: which assistant id backs each
// agent and which evaluator reviews its payloads.
type Registry struct {
	assistantIDs map[string]string
	evaluators   map[string]Evaluator
}

// New builds a registry. assistantIDs maps agent name to the deployed
// assistant id; agents without an id are skipped at enlistment time.
func New(assistantIDs map[string]string, evaluators map[string]Evaluator) *Registry {
	return &Registry{assistantIDs: assistantIDs, evaluators: evaluators}
}

// AssistantID returns the assistant id backing an agent.
func (r *Registry) AssistantID(agent string) (string, bool) {
	id, ok := r.assistantIDs[agent]
	return id, ok && id != ""
}

// Evaluator returns the rule evaluator bound to an agent.
func (r *Registry) Evaluator(agent string) (Evaluator, bool) {
	eval, ok := r.evaluators[agent]
	return eval, ok && eval != nil
}

// AgentsFor resolves a claim's incident types to the deduplicated, sorted set
// of runnable agents. Unknown incidents and agents without an assistant id are
// skipped.
func (r *Registry) AgentsFor(incidents []string) []string {
	seen := map[string]bool{}
	var agents []string
	for _, incident := range incidents {
		agent, ok := incidentToAgent[incident]
		if !ok || seen[agent] {
			continue
		}
		if _, bound := r.AssistantID(agent); !bound {
			continue
		}
		seen[agent] = true
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}
