package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/audit"
	"github.com/axelsure/claimflow/pkg/claim"
	"github.com/axelsure/claimflow/pkg/llm"
)

// FollowupSubject is the subject line of the aggregated question email.
const FollowupSubject = "Further information required to process your claim"

type followupEmail struct {
	EmailHTML string `json:"email_html" jsonschema:"description=HTML-formatted list of deduplicated follow-up questions"`
}

var followupSchema = llm.GenerateSchema[followupEmail]()

const followupInstruction = `You are the Follow-Up Agent in an AI-powered automotive insurance claim system.

Given a JSON object that aggregates possible open questions from multiple specialist agents, produce a single professional HTML e-mail body that starts with:

<b>To help us proceed with your claim, please respond to the following questions:</b><br><br>

Then list each deduplicated, well-phrased question, numbered and separated by <br> tags.

Return exactly one JSON object matching the provided schema - nothing else.`

// sendFollowup turns the queued agent questions into one deduplicated email
// and sends it. The queue is drained only after a successful send so a
// transport failure retries on the next pass.
func (o *Orchestrator) sendFollowup(ctx context.Context, claimID string, queued []claim.FollowUp) error {
	c, err := o.store.LoadClaim(claimID)
	if err != nil {
		return err
	}
	if c == nil || c.SenderEmail == "" {
		return errors.New("claim has no sender email")
	}

	payload, err := json.Marshal(map[string]any{"specialist_outputs": queued})
	if err != nil {
		return errors.Wrap(err, "failed to encode follow-up questions")
	}

	var result followupEmail
	if err := o.llm.Respond(ctx, followupInstruction, []llm.ContentBlock{llm.TextBlock(string(payload))}, "follow_up_email", followupSchema, &result); err != nil {
		return errors.Wrap(err, "follow-up email call failed")
	}
	if err := o.store.SaveFollowupEmail(claimID, result.EmailHTML); err != nil {
		return err
	}

	if err := o.sender.Send(ctx, c.SenderEmail, FollowupSubject, result.EmailHTML); err != nil {
		return errors.Wrap(err, "failed to send follow-up email")
	}

	if _, err := o.store.TakeFollowups(claimID); err != nil {
		return errors.Wrap(err, "failed to drain follow-up queue")
	}
	o.audit.Record(ctx, claimID, audit.EventFollowupSent, "")
	return nil
}
