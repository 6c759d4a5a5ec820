package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/extract"
	"github.com/axelsure/claimflow/pkg/llm"
	"github.com/axelsure/claimflow/pkg/logger"
)

const extractTruncateLen = 1000

type attachmentDetail struct {
	Name    string `json:"name" jsonschema:"description=Attachment filename"`
	Details string `json:"details" jsonschema:"description=Concise description of the attachment content"`
}

type attachmentDetails struct {
	AttachmentDetails []attachmentDetail `json:"attachment_details"`
}

var attachmentDetailsSchema = llm.GenerateSchema[attachmentDetails]()

const describerInstruction = `You are the Attachment Details Assistant.
For each attachment, combine any provided extracted text and the visual content to craft a concise, vivid description. Return exactly one JSON object that matches the schema.`

// describeAttachments extracts text from new attachments, asks the model for
// per-attachment descriptions, and persists the mapping. One broken
// attachment contributes an empty description, never an aborted batch.
func (o *Orchestrator) describeAttachments(ctx context.Context, claimID string, filenames []string) error {
	log := logger.G(ctx)

	parsed, err := o.store.ParsedDocs(claimID)
	if err != nil {
		return err
	}

	var blocks []llm.ContentBlock
	for _, name := range filenames {
		data, err := os.ReadFile(o.store.AttachmentPath(claimID, name))
		if err != nil {
			log.WithError(err).WithField("filename", name).Warn("attachment unreadable")
			continue
		}

		text, ok := parsed[name]
		if !ok {
			text, err = extract.Text(name, data)
			if err != nil {
				log.WithError(err).WithField("filename", name).Warn("text extraction failed")
				text = ""
			}
			if err := o.store.RecordParsedDoc(claimID, name, text); err != nil {
				return err
			}
		}

		if trimmed := strings.TrimSpace(text); trimmed != "" {
			trimmed = truncateRunes(trimmed, extractTruncateLen)
			blocks = append(blocks, llm.TextBlock(fmt.Sprintf("%s extracted text:\n%s", name, trimmed)))
		}
		if extract.IsImage(name) {
			blocks = append(blocks, llm.ImageBlock(imageDataURL(name, data)))
		}
	}
	if len(blocks) == 0 {
		return nil
	}

	var result attachmentDetails
	if err := o.llm.Respond(ctx, describerInstruction, blocks, "attachment_details", attachmentDetailsSchema, &result); err != nil {
		return errors.Wrap(err, "attachment description call failed")
	}

	details := make(map[string]string, len(result.AttachmentDetails))
	for _, d := range result.AttachmentDetails {
		details[d.Name] = d.Details
	}
	return o.store.WriteAttachmentDescriptions(claimID, details)
}

// truncateRunes caps s at n runes, never splitting a multi-byte sequence.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func imageDataURL(filename string, data []byte) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		ext = "jpeg"
	}
	return fmt.Sprintf("data:image/%s;base64,%s", ext, base64.StdEncoding.EncodeToString(data))
}
