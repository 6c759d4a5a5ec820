// Package claim defines the data model for insurance-claim sessions: the claim
// record itself, its conversation context, and the records exchanged between
// the specialist agents and the decision engine.
package claim

import (
	"encoding/json"
	"time"
)

// Claim is the durable per-claim record. It is created when the claim id is
// first minted and persists for the lifetime of the claim.
type Claim struct {
	ClaimID             string            `json:"claim_id"`
	SenderEmail         string            `json:"sender_email"`
	Subject             string            `json:"subject"`
	SubjectFP           string            `json:"subject_fp"`
	Stage               Stage             `json:"stage"`
	IncidentTypes       []string          `json:"incident_types"`
	IncidentDescription string            `json:"incident_description,omitempty"`
	AgentThreads        map[string]string `json:"agent_threads"`
	CompletedAgents     []string          `json:"completed_agents"`
	ClarifyingSent      bool              `json:"clarifying_sent"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// New returns a fresh claim in the NEW stage.
func New(claimID, senderEmail string) *Claim {
	now := time.Now()
	return &Claim{
		ClaimID:         claimID,
		SenderEmail:     senderEmail,
		Stage:           StageNew,
		AgentThreads:    map[string]string{},
		CompletedAgents: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasCompleted reports whether the named agent has already produced a decision
// for this claim.
func (c *Claim) HasCompleted(agent string) bool {
	for _, a := range c.CompletedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

// MarkCompleted records the agent as completed. Idempotent.
func (c *Claim) MarkCompleted(agent string) {
	if !c.HasCompleted(agent) {
		c.CompletedAgents = append(c.CompletedAgents, agent)
	}
}

// ConversationEntry is one observed message in the claim conversation.
// Insertion order is the ordering of observation; timestamps are advisory.
type ConversationEntry struct {
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Attachments []string  `json:"attachments,omitempty"`
}

// Context is the conversation history plus attachment descriptions, as stored
// in context.json.
type Context struct {
	ConversationHistory []ConversationEntry `json:"conversation_history"`
	AttachmentDetails   map[string]string   `json:"attachment_details"`
	LastUpdated         time.Time           `json:"last_updated"`
}

// PendingPayload is a structured tool-call payload emitted by an agent and
// awaiting review by its evaluator.
type PendingPayload struct {
	Agent     string          `json:"agent"`
	Payload   json.RawMessage `json:"payload"`
	Processed bool            `json:"processed"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decision is the evaluator verdict for one agent. At most one decision exists
// per agent per claim; a newer decision replaces the older one.
type Decision struct {
	Agent     string          `json:"agent"`
	Decision  json.RawMessage `json:"decision"`
	Timestamp time.Time       `json:"timestamp"`
}

// FollowUp is an open question raised by an agent, queued for aggregation into
// a single claimant email.
type FollowUp struct {
	Agent     string    `json:"agent"`
	Question  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}
