package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/axelsure/claimflow/pkg/audit"
	"github.com/axelsure/claimflow/pkg/config"
	"github.com/axelsure/claimflow/pkg/decision"
	"github.com/axelsure/claimflow/pkg/llm/openai"
	"github.com/axelsure/claimflow/pkg/logger"
	"github.com/axelsure/claimflow/pkg/mail"
	"github.com/axelsure/claimflow/pkg/orchestrator"
	"github.com/axelsure/claimflow/pkg/presenter"
	"github.com/axelsure/claimflow/pkg/registry"
	"github.com/axelsure/claimflow/pkg/resolve"
	"github.com/axelsure/claimflow/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the mailbox and process claims until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.G(ctx)

	sessions, err := store.New(cfg.SessionDir)
	if err != nil {
		return err
	}

	recorder, err := audit.Open(ctx, cfg.AuditDB)
	if err != nil {
		return errors.Wrap(err, "failed to open audit database")
	}
	defer recorder.Close()

	reg, err := buildRegistry(cfg.Assistants)
	if err != nil {
		return err
	}

	client := openai.New(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})

	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		return errors.Wrap(err, "invalid smtp configuration")
	}

	inbox, err := mail.NewIMAPInbox(mail.IMAPConfig{
		Addr:     cfg.IMAP.Addr,
		Username: cfg.IMAP.Username,
		Password: cfg.IMAP.Password,
		Mailbox:  cfg.IMAP.Mailbox,
	})
	if err != nil {
		return errors.Wrap(err, "invalid imap configuration")
	}

	orch := orchestrator.New(sessions, client, reg, sender,
		orchestrator.WithRunTimeout(cfg.RunTimeout),
		orchestrator.WithAudit(recorder),
	)

	ingress := mail.NewIngress(inbox, resolve.New(sessions), sessions, orch, cfg.Poll,
		mail.WithMaxAttachmentSize(cfg.MaxAttachmentSize))

	log.WithFields(map[string]any{
		"mailbox":     cfg.IMAP.Mailbox,
		"session_dir": cfg.SessionDir,
		"poll":        cfg.Poll.String(),
	}).Info("starting claim processor")
	presenter.Info("Press Ctrl+C to stop")

	err = ingress.Run(ctx)
	if errors.Is(err, context.Canceled) {
		presenter.Info("Claim processor stopped")
		return nil
	}
	return err
}

// buildRegistry binds configured assistant ids and the decision rules to the
// specialist agents. Every configured assistant must be a known agent.
func buildRegistry(assistants map[string]string) (*registry.Registry, error) {
	known := map[string]bool{}
	for _, agent := range registry.Agents() {
		known[agent] = true
	}
	for agent := range assistants {
		if !known[agent] {
			return nil, errors.Errorf("unknown agent in assistants config: %s", agent)
		}
	}

	evaluators := map[string]registry.Evaluator{}
	for agent, eval := range decision.Evaluators() {
		evaluators[agent] = registry.Evaluator(eval)
	}
	return registry.New(assistants, evaluators), nil
}
