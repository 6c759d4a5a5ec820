package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/audit"
	"github.com/axelsure/claimflow/pkg/claim"
	"github.com/axelsure/claimflow/pkg/llm"
)

// ClarifierSubject is the subject line of the first-contact question email.
const ClarifierSubject = "Quick clarification needed to process your claim"

type clarifyResult struct {
	ClarifyingQuestion string `json:"clarifying_question" jsonschema:"description=A single open-ended question asking for the most critical missing context"`
}

var clarifySchema = llm.GenerateSchema[clarifyResult]()

const clarifyInstruction = `You are the Clarifying Question Assistant for an automotive-insurance claim system. After reading the user's initial description and any attachment information, generate ONE well-structured, open-ended question that gathers the most critical missing context.

Do NOT classify the incident; simply infer likely incident categories and ask the question accordingly.

- Always include sub-questions, if needed, in a natural flowing manner.
- Always ask about territorial usage, general exceptions, vehicle security and administrative matters.

Return exactly one JSON object that matches the provided schema.`

// clarify generates the single clarifying question, emails it to the
// claimant, and sets the clarifying_sent flag. The flag is set only after a
// successful send so failures retry on the next message.
func (o *Orchestrator) clarify(ctx context.Context, claimID, message string) error {
	c, err := o.store.LoadClaim(claimID)
	if err != nil {
		return err
	}
	if c == nil || c.SenderEmail == "" {
		return errors.New("claim has no sender email")
	}

	blocks := []llm.ContentBlock{llm.TextBlock(message)}
	if summary, err := o.attachmentSummary(claimID); err == nil && summary != "" {
		blocks = append(blocks, llm.TextBlock("Attachment Details:\n"+summary))
	}

	var result clarifyResult
	if err := o.llm.Respond(ctx, clarifyInstruction, blocks, "clarify_incident", clarifySchema, &result); err != nil {
		return errors.Wrap(err, "clarifying question call failed")
	}
	if err := o.store.SaveClarifyingQuestion(claimID, result.ClarifyingQuestion); err != nil {
		return err
	}

	html := clarifierBody(claimID, result.ClarifyingQuestion)
	if err := o.sender.Send(ctx, c.SenderEmail, ClarifierSubject, html); err != nil {
		return errors.Wrap(err, "failed to send clarifying question")
	}

	if _, err := o.store.UpdateClaim(claimID, func(c *claim.Claim) error {
		c.ClarifyingSent = true
		return nil
	}); err != nil {
		return err
	}
	o.audit.Record(ctx, claimID, audit.EventClarifierSent, result.ClarifyingQuestion)
	return nil
}

func clarifierBody(claimID, question string) string {
	return "<p>Dear Valued Customer,</p>" +
		fmt.Sprintf("<p>Thank you for submitting your claim (Reference: %s).</p>", claimID) +
		"<p>To help us process your claim more efficiently, we need a bit more information:</p>" +
		"<p style='background-color: #f5f5f5; padding: 15px; border-left: 4px solid #4a90e2;'>" +
		fmt.Sprintf("<b>%s</b>", question) +
		"</p>" +
		"<p>Please reply to this email with the requested information at your earliest convenience.</p>" +
		"<p>Best regards,<br>Axel Claims Team</p>"
}

// attachmentSummary flattens the stored attachment descriptions into a plain
// text block for the clarifier prompt.
func (o *Orchestrator) attachmentSummary(claimID string) (string, error) {
	cctx, err := o.store.LoadContext(claimID)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(cctx.AttachmentDetails))
	for name := range cctx.AttachmentDetails {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		if details := cctx.AttachmentDetails[name]; details != "" {
			parts = append(parts, fmt.Sprintf("[%s]\n%s", name, details))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
