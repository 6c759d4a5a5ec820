// Package openai implements the llm.Client surface on the OpenAI API,
// including the Assistants thread/run protocol used by the specialist agents.
package openai

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/axelsure/claimflow/pkg/llm"
	"github.com/axelsure/claimflow/pkg/logger"
)

const defaultPollInterval = time.Second

// Config carries the connection and model settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string // chat model for structured one-shot calls
	PollInterval time.Duration
}

// Client talks to the OpenAI API. It satisfies llm.Client.
type Client struct {
	api          *openai.Client
	model        string
	pollInterval time.Duration
}

// New builds a client from config. OPENAI_API_BASE in the environment
// overrides the configured base URL, matching local-proxy workflows.
func New(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if baseURL := os.Getenv("OPENAI_API_BASE"); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Client{
		api:          openai.NewClientWithConfig(clientConfig),
		model:        cfg.Model,
		pollInterval: poll,
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

// Respond runs a single schema-constrained chat completion and unmarshals the
// reply into out.
func (c *Client) Respond(ctx context.Context, system string, blocks []llm.ContentBlock, schemaName string, schema *jsonschema.Schema, out any) error {
	parts := make([]openai.ChatMessagePart, 0, len(blocks))
	for _, b := range blocks {
		if b.ImageURL != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: b.ImageURL},
			})
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: b.Text,
		})
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: schema,
				Strict: true,
			},
		},
	}

	var resp openai.ChatCompletionResponse
	err := retry.Do(
		func() error {
			var err error
			resp, err = c.api.CreateChatCompletion(ctx, req)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryableError),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying chat completion")
		}),
	)
	if err != nil {
		return errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return errors.New("chat completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return errors.Wrapf(err, "failed to decode structured reply %q", content)
	}
	return nil
}

// CreateThread opens a fresh assistant thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", errors.Wrap(err, "failed to create thread")
	}
	return thread.ID, nil
}

// PostUserMessage appends a user message to a thread.
func (c *Client) PostUserMessage(ctx context.Context, threadID, content string) error {
	_, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: content,
	})
	return errors.Wrap(err, "failed to post user message")
}

// StartRun launches an assistant run on the thread.
func (c *Client) StartRun(ctx context.Context, threadID, assistantID string) (llm.Run, error) {
	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return llm.Run{}, errors.Wrap(err, "failed to create run")
	}
	return toRun(run), nil
}

// WaitRun polls the run until it reaches a terminal status or ctx expires.
func (c *Client) WaitRun(ctx context.Context, threadID, runID string) (llm.Run, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		run, err := c.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return llm.Run{}, errors.Wrap(err, "failed to retrieve run")
		}
		if r := toRun(run); r.Status.Terminal() {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return llm.Run{}, errors.Wrap(ctx.Err(), "run did not finish in time")
		case <-ticker.C:
		}
	}
}

// SubmitToolOutputs answers the run's pending tool calls and resumes polling.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs map[string]string) (llm.Run, error) {
	toolOutputs := make([]openai.ToolOutput, 0, len(outputs))
	for callID, output := range outputs {
		toolOutputs = append(toolOutputs, openai.ToolOutput{ToolCallID: callID, Output: output})
	}

	run, err := c.api.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: toolOutputs,
	})
	if err != nil {
		return llm.Run{}, errors.Wrap(err, "failed to submit tool outputs")
	}
	if r := toRun(run); r.Status.Terminal() {
		return r, nil
	}
	return c.WaitRun(ctx, threadID, runID)
}

// LatestAssistantMessage returns the newest assistant text in the thread.
func (c *Client) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	limit := 10
	order := "desc"
	msgs, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to list thread messages")
	}

	for _, msg := range msgs.Messages {
		if msg.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		var parts []string
		for _, content := range msg.Content {
			if content.Text != nil {
				parts = append(parts, content.Text.Value)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	return "", nil
}

func toRun(run openai.Run) llm.Run {
	r := llm.Run{ID: run.ID}

	switch run.Status {
	case openai.RunStatusQueued:
		r.Status = llm.RunQueued
	case openai.RunStatusInProgress:
		r.Status = llm.RunInProgress
	case openai.RunStatusRequiresAction:
		r.Status = llm.RunRequiresAction
	case openai.RunStatusCompleted:
		r.Status = llm.RunCompleted
	case openai.RunStatusFailed:
		r.Status = llm.RunFailed
	case openai.RunStatusExpired:
		r.Status = llm.RunExpired
	default:
		r.Status = llm.RunStatus(run.Status)
	}

	if run.Status == openai.RunStatusRequiresAction &&
		run.RequiredAction != nil &&
		run.RequiredAction.SubmitToolOutputs != nil {
		for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			r.ToolCalls = append(r.ToolCalls, llm.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: json.RawMessage(call.Function.Arguments),
			})
		}
	}
	return r
}
