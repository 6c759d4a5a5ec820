package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/axelsure/claimflow/pkg/claim"
	"github.com/axelsure/claimflow/pkg/llm"
	"github.com/axelsure/claimflow/pkg/logger"
)

// toolCallAck is the stub reply that closes an agent run after its payload
// has been persisted.
const toolCallAck = `{"status":"saved"}`

// runAgentsPass fans out the remaining agents, reviews any pending payloads,
// and then either sends a follow-up email or completes the claim.
func (o *Orchestrator) runAgentsPass(ctx context.Context, claimID string) error {
	_, err := o.runAgentsPassTracked(ctx, claimID)
	return err
}

// runAgentsPassTracked additionally reports whether a follow-up email went
// out, which the FOLLOWUP_REQUESTED stage needs for its exit decision.
func (o *Orchestrator) runAgentsPassTracked(ctx context.Context, claimID string) (sentFollowup bool, err error) {
	log := logger.G(ctx)

	c, err := o.store.LoadClaim(claimID)
	if err != nil {
		return false, err
	}

	if agents := o.agentsToRun(c); len(agents) > 0 {
		if err := o.fanOut(ctx, claimID, agents); err != nil {
			// individual agent failures are non-fatal: completed agents have
			// already persisted their results
			log.WithError(err).Warn("one or more agent runs failed")
		}
	}

	if err := o.review(ctx, claimID); err != nil {
		log.WithError(err).Warn("review pass failed")
	}

	queued, err := o.store.ListFollowups(claimID)
	if err != nil {
		return false, err
	}
	if len(queued) > 0 {
		if err := o.sendFollowup(ctx, claimID, queued); err != nil {
			// queue stays intact; the next pass retries
			log.WithError(err).Warn("follow-up send failed")
			return false, nil
		}
		o.transition(ctx, claimID, claim.StageFollowupRequested)
		return true, nil
	}

	c, err = o.store.LoadClaim(claimID)
	if err != nil {
		return false, err
	}
	if len(o.agentsToRun(c)) == 0 && len(c.IncidentTypes) > 0 {
		if c.Stage == claim.StageFollowupRequested {
			o.transition(ctx, claimID, claim.StageAgentsRunning)
		}
		o.transition(ctx, claimID, claim.StageAgentsComplete)
	}
	return false, nil
}

// fanOut runs the agents concurrently with a bounded pool. A failed or
// panicking agent never takes its siblings down.
func (o *Orchestrator) fanOut(ctx context.Context, claimID string, agents []string) error {
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	g := &errgroup.Group{}
	g.SetLimit(agentPoolSize)
	for _, agent := range agents {
		agent := agent
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errs = multierror.Append(errs, errors.Errorf("agent %s panicked: %v", agent, r))
					mu.Unlock()
				}
			}()
			if err := o.runAgent(ctx, claimID, agent); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, errors.Wrapf(err, "agent %s", agent))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errs.ErrorOrNil()
}

// runAgent drives one specialist agent: post the context message to its
// thread, start a run, and handle the terminal state. A tool call parks the
// payload for review; completed text is either a structured finding or an
// open question for the follow-up queue.
func (o *Orchestrator) runAgent(ctx context.Context, claimID, agent string) error {
	log := logger.G(ctx).WithField("agent", agent)

	assistantID, ok := o.registry.AssistantID(agent)
	if !ok {
		log.Warn("agent has no assistant id, skipping")
		return nil
	}

	threadID, err := o.agentThread(ctx, claimID, agent)
	if err != nil {
		return err
	}

	ctxMsg, err := o.buildContextMessage(claimID)
	if err != nil {
		return err
	}
	if err := o.store.AppendAgentMessage(claimID, agent, "user", ctxMsg); err != nil {
		return err
	}
	if err := o.llm.PostUserMessage(ctx, threadID, ctxMsg); err != nil {
		return err
	}

	run, err := o.llm.StartRun(ctx, threadID, assistantID)
	if err != nil {
		return err
	}
	if !run.Status.Terminal() {
		runCtx, cancel := context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
		run, err = o.llm.WaitRun(runCtx, threadID, run.ID)
		if err != nil {
			return err
		}
	}

	switch run.Status {
	case llm.RunRequiresAction:
		outputs := make(map[string]string, len(run.ToolCalls))
		for _, call := range run.ToolCalls {
			if err := o.store.EnqueuePending(claimID, agent, call.Arguments); err != nil {
				return err
			}
			outputs[call.ID] = toolCallAck
		}
		if _, err := o.llm.SubmitToolOutputs(ctx, threadID, run.ID, outputs); err != nil {
			// payload is already durable; the run closing is best effort
			log.WithError(err).Warn("failed to close agent run")
		}
		o.transition(ctx, claimID, claim.StageReview)
		return nil

	case llm.RunCompleted:
		msg, err := o.llm.LatestAssistantMessage(ctx, threadID)
		if err != nil {
			return err
		}
		if err := o.store.AppendAgentMessage(claimID, agent, "assistant", msg); err != nil {
			return err
		}
		// a JSON object is a structured finding; anything else is an open
		// question for the claimant
		if !isJSONObject(msg) {
			return o.store.AppendFollowup(claimID, agent, msg)
		}
		return nil

	default:
		return errors.Errorf("run ended with status %s", run.Status)
	}
}

func isJSONObject(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed))
}

// agentThread returns the agent's thread handle, creating and persisting one
// on first use.
func (o *Orchestrator) agentThread(ctx context.Context, claimID, agent string) (string, error) {
	c, err := o.store.LoadClaim(claimID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", errors.Errorf("claim %s not found", claimID)
	}
	if threadID := c.AgentThreads[agent]; threadID != "" {
		return threadID, nil
	}

	threadID, err := o.llm.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	_, err = o.store.UpdateClaim(claimID, func(c *claim.Claim) error {
		if c.AgentThreads == nil {
			c.AgentThreads = map[string]string{}
		}
		if existing := c.AgentThreads[agent]; existing != "" {
			threadID = existing
			return nil
		}
		c.AgentThreads[agent] = threadID
		return nil
	})
	return threadID, err
}
