package mail

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/logger"
)

const defaultPollInterval = 10 * time.Second

// Orchestrator advances a claim given a newly ingested message.
type Orchestrator interface {
	Orchestrate(ctx context.Context, claimID, sender, subject, body string, attachments []string) error
}

// Resolver maps a message to a claim id.
type Resolver interface {
	Resolve(sender, subject string) (claimID string, minted bool, err error)
}

// SessionStore is the slice of the session store the ingress loop needs.
type SessionStore interface {
	IsMailProcessed(uid string) (bool, error)
	MarkMailProcessed(uid string) error
	SaveAttachment(claimID, filename string, data []byte) (string, error)
}

// Ingress polls the inbox and routes each new message into the orchestrator.
type Ingress struct {
	inbox         Inbox
	resolver      Resolver
	store         SessionStore
	orch          Orchestrator
	interval      time.Duration
	maxAttachment int64
}

// IngressOption adjusts ingress construction.
type IngressOption func(*Ingress)

// WithMaxAttachmentSize overrides the attachment admission cap.
func WithMaxAttachmentSize(n int64) IngressOption {
	return func(i *Ingress) { i.maxAttachment = n }
}

// NewIngress wires the ingress loop. interval <= 0 selects the default.
func NewIngress(inbox Inbox, resolver Resolver, store SessionStore, orch Orchestrator, interval time.Duration, opts ...IngressOption) *Ingress {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	i := &Ingress{inbox: inbox, resolver: resolver, store: store, orch: orch, interval: interval}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run polls until ctx is cancelled. Transient inbox failures log and wait for
// the next tick.
func (i *Ingress) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		i.Tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one poll-and-dispatch pass. Per-message failures are isolated
// and never abort the batch.
func (i *Ingress) Tick(ctx context.Context) {
	log := logger.G(ctx)

	messages, err := i.inbox.FetchUnseen(ctx)
	if err != nil {
		log.WithError(err).Warn("inbox poll failed, will retry next tick")
		return
	}

	for _, msg := range messages {
		if err := i.handle(ctx, msg); err != nil {
			log.WithError(err).WithField("uid", msg.UID).Error("failed to ingest message")
		}
	}
}

func (i *Ingress) handle(ctx context.Context, msg Inbound) error {
	uid := strconv.FormatUint(uint64(msg.UID), 10)
	log := logger.G(ctx).WithField("uid", uid)

	done, err := i.store.IsMailProcessed(uid)
	if err != nil {
		return errors.Wrap(err, "failed to check processed set")
	}
	if done {
		return nil
	}

	sender := BareAddress(msg.Sender)
	if sender == "" {
		log.Warn("message has no sender, skipping")
		return i.store.MarkMailProcessed(uid)
	}

	claimID, minted, err := i.resolver.Resolve(sender, msg.Subject)
	if err != nil {
		return errors.Wrap(err, "failed to resolve claim")
	}
	log = log.WithField("claim_id", claimID)
	if minted {
		log.Info("new claim conversation")
	}

	var saved []string
	for _, att := range msg.Attachments {
		if !Admissible(att.Filename, int64(len(att.Data)), i.maxAttachment) {
			log.WithField("filename", att.Filename).Debug("attachment rejected")
			continue
		}
		name, err := i.store.SaveAttachment(claimID, att.Filename, att.Data)
		if err != nil {
			log.WithError(err).WithField("filename", att.Filename).Warn("failed to save attachment")
			continue
		}
		saved = append(saved, name)
	}

	// UID is recorded after handoff whether or not orchestration succeeded:
	// at-most-once orchestration per message.
	if err := i.orch.Orchestrate(ctx, claimID, sender, msg.Subject, msg.Text, saved); err != nil {
		log.WithError(err).Error("orchestration failed")
	}
	return errors.Wrap(i.store.MarkMailProcessed(uid), "failed to record processed uid")
}
