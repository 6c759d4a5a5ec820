// Package orchestrator drives each claim through its processing pipeline:
// clarifying question on first contact, triage into incident types, concurrent
// specialist-agent runs, rule-based review of tool-call payloads, and
// deduplicated follow-up emails. The stage machine here is the single
// scheduler; every other component acts only when this package calls it.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/audit"
	"github.com/axelsure/claimflow/pkg/claim"
	"github.com/axelsure/claimflow/pkg/llm"
	"github.com/axelsure/claimflow/pkg/logger"
	"github.com/axelsure/claimflow/pkg/mail"
	"github.com/axelsure/claimflow/pkg/registry"
	"github.com/axelsure/claimflow/pkg/resolve"
	"github.com/axelsure/claimflow/pkg/store"
)

const (
	defaultRunTimeout = 120 * time.Second
	agentPoolSize     = 5
)

// Orchestrator owns the claim pipeline. One Orchestrate call handles one
// inbound message end to end.
type Orchestrator struct {
	store    *store.Store
	llm      llm.Client
	registry *registry.Registry
	sender   mail.Sender
	audit    audit.Sink

	// locks serializes whole orchestration runs per claim, distinct from the
	// store's per-operation locks.
	locks      *store.MutexRegistry
	runTimeout time.Duration
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithRunTimeout caps how long a single agent run may poll.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.runTimeout = d }
}

// WithAudit attaches an audit sink.
func WithAudit(sink audit.Sink) Option {
	return func(o *Orchestrator) { o.audit = sink }
}

// New wires the orchestrator.
func New(s *store.Store, client llm.Client, reg *registry.Registry, sender mail.Sender, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      s,
		llm:        client,
		registry:   reg,
		sender:     sender,
		audit:      audit.Nop{},
		locks:      store.NewMutexRegistry(),
		runTimeout: defaultRunTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate processes one inbound message for a claim. Runs for the same
// claim are serialized; failures leave the claim in a stage from which the
// next message retries.
func (o *Orchestrator) Orchestrate(ctx context.Context, claimID, sender, subject, body string, attachments []string) error {
	mu := o.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	ctx = logger.WithLogger(ctx, logger.G(ctx).WithField("claim_id", claimID))
	log := logger.G(ctx)

	c, err := o.ensureClaim(ctx, claimID, sender, subject)
	if err != nil {
		return err
	}

	// Payloads parked by a previous run are reviewed before new input moves
	// the claim along.
	if c.Stage == claim.StageReview {
		if err := o.review(ctx, claimID); err != nil {
			log.WithError(err).Warn("review pass failed")
		}
	}

	if err := o.store.AppendConversation(claimID, claim.ConversationEntry{
		Role:        "user",
		Content:     body,
		Attachments: attachments,
	}); err != nil {
		return errors.Wrap(err, "failed to append user message")
	}
	o.audit.Record(ctx, claimID, audit.EventMailIngested, subject)
	if len(attachments) > 0 {
		// best effort: a failed description never blocks the claim
		if err := o.describeAttachments(ctx, claimID, attachments); err != nil {
			log.WithError(err).Warn("attachment description failed")
		}
	}

	c, err = o.store.LoadClaim(claimID)
	if err != nil {
		return err
	}

	switch c.Stage {
	case claim.StageNew:
		if !c.ClarifyingSent {
			if err := o.clarify(ctx, claimID, body); err != nil {
				return errors.Wrap(err, "clarifier failed")
			}
		}
		// regression guard: repeated first messages skip straight ahead
		o.transition(ctx, claimID, claim.StageQuestioned)

	case claim.StageQuestioned:
		if err := o.triage(ctx, claimID); err != nil {
			// stage stays QUESTIONED so the next message retries
			return errors.Wrap(err, "triage failed")
		}
		o.transition(ctx, claimID, claim.StageAgentsRunning)
		return o.runAgentsPass(ctx, claimID)

	case claim.StageTriaged:
		o.transition(ctx, claimID, claim.StageAgentsRunning)
		return o.runAgentsPass(ctx, claimID)

	case claim.StageAgentsRunning:
		return o.runAgentsPass(ctx, claimID)

	case claim.StageFollowupRequested:
		sentFollowup, err := o.runAgentsPassTracked(ctx, claimID)
		if err != nil {
			return err
		}
		if !sentFollowup {
			o.transition(ctx, claimID, claim.StageAgentsRunning)
		}

	case claim.StageAgentsComplete:
		o.transition(ctx, claimID, claim.StageComplete)

	case claim.StageComplete:
		// new correspondence reopens the claim: agents re-run against the
		// updated conversation and their fresh decisions replace the old ones
		if _, err := o.store.UpdateClaim(claimID, func(c *claim.Claim) error {
			c.CompletedAgents = nil
			return nil
		}); err != nil {
			return err
		}
		o.transition(ctx, claimID, claim.StageTriaged)
		o.transition(ctx, claimID, claim.StageAgentsRunning)
		return o.runAgentsPass(ctx, claimID)
	}
	return nil
}

// ensureClaim creates the claim record on first contact and backfills the
// sender and subject fingerprint if unset.
func (o *Orchestrator) ensureClaim(ctx context.Context, claimID, sender, subject string) (*claim.Claim, error) {
	c, err := o.store.LoadClaim(claimID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = claim.New(claimID, sender)
		c.Subject = subject
		c.SubjectFP = resolve.Fingerprint(sender, resolve.NormalizeSubject(subject))
		if err := o.store.SaveClaim(c); err != nil {
			return nil, errors.Wrap(err, "failed to create claim")
		}
		o.audit.Record(ctx, claimID, audit.EventClaimCreated, sender)
		return c, nil
	}
	if c.SenderEmail == "" || c.SubjectFP == "" {
		return o.store.UpdateClaim(claimID, func(c *claim.Claim) error {
			if c.SenderEmail == "" {
				c.SenderEmail = sender
			}
			if c.SubjectFP == "" {
				c.Subject = subject
				c.SubjectFP = resolve.Fingerprint(sender, resolve.NormalizeSubject(subject))
			}
			return nil
		})
	}
	return c, nil
}

// transition moves the claim to the target stage. Moves rejected by the
// transition table are logged no-ops.
func (o *Orchestrator) transition(ctx context.Context, claimID string, to claim.Stage) {
	var from claim.Stage
	moved := false
	_, err := o.store.UpdateClaim(claimID, func(c *claim.Claim) error {
		from = c.Stage
		if !claim.CanTransition(c.Stage, to) {
			return nil
		}
		c.Stage = to
		moved = true
		return nil
	})
	log := logger.G(ctx).WithFields(map[string]any{"from": from, "to": to})
	if err != nil {
		log.WithError(err).Error("stage transition failed")
		return
	}
	if !moved {
		if from != to {
			log.Warn("stage transition rejected")
		}
		return
	}
	log.Info("stage transition")
	o.audit.Record(ctx, claimID, audit.EventStageChanged, fmt.Sprintf("%s -> %s", from, to))
}

// agentsToRun resolves the claim's enlisted agents minus those already
// completed.
func (o *Orchestrator) agentsToRun(c *claim.Claim) []string {
	var remaining []string
	for _, agent := range o.registry.AgentsFor(c.IncidentTypes) {
		if !c.HasCompleted(agent) {
			remaining = append(remaining, agent)
		}
	}
	return remaining
}

// buildContextMessage flattens the conversation and attachment descriptions
// into the context block posted to each agent thread.
func (o *Orchestrator) buildContextMessage(claimID string) (string, error) {
	cctx, err := o.store.LoadContext(claimID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, entry := range cctx.ConversationHistory {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(entry.Role), entry.Content)
	}
	if len(cctx.AttachmentDetails) > 0 {
		b.WriteString("\nATTACHMENTS:\n")
		names := make([]string, 0, len(cctx.AttachmentDetails))
		for name := range cctx.AttachmentDetails {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "%s: %s\n", name, cctx.AttachmentDetails[name])
		}
	}
	return b.String(), nil
}
