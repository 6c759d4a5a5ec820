package orchestrator

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/axelsure/claimflow/pkg/audit"
	"github.com/axelsure/claimflow/pkg/claim"
	"github.com/axelsure/claimflow/pkg/logger"
)

// review feeds every unprocessed pending payload through the evaluator bound
// to its agent. A successful evaluation records the decision, completes the
// agent, and consumes the payload. Payloads for unknown agents are left
// intact; evaluator failures leave the payload queued for the next pass.
func (o *Orchestrator) review(ctx context.Context, claimID string) error {
	pending, err := o.store.ListUnprocessedPending(claimID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	var (
		mu           sync.Mutex
		errs         *multierror.Error
		processedAny bool
	)

	g := &errgroup.Group{}
	g.SetLimit(agentPoolSize)
	for _, p := range pending {
		p := p
		g.Go(func() error {
			log := logger.G(ctx).WithField("agent", p.Agent)

			eval, ok := o.registry.Evaluator(p.Agent)
			if !ok {
				log.Warn("no evaluator bound, payload left pending")
				return nil
			}

			decision, err := eval(p.Payload)
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, errors.Wrapf(err, "evaluator %s", p.Agent))
				mu.Unlock()
				return nil
			}

			if err := o.store.PutDecision(claimID, p.Agent, decision); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}
			if _, err := o.store.UpdateClaim(claimID, func(c *claim.Claim) error {
				c.MarkCompleted(p.Agent)
				return nil
			}); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}
			if err := o.store.MarkPendingProcessed(claimID, p.Agent); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}

			o.audit.Record(ctx, claimID, audit.EventDecisionRecorded, p.Agent)
			mu.Lock()
			processedAny = true
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if processedAny {
		// unfinished agents get another pass
		o.transition(ctx, claimID, claim.StageAgentsRunning)
	}
	return errs.ErrorOrNil()
}
