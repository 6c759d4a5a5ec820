package mail

import (
	"context"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"
	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/logger"
)

// IMAPConfig carries the inbox connection settings.
type IMAPConfig struct {
	Addr     string // host:port, TLS
	Username string
	Password string
	Mailbox  string // defaults to INBOX
}

// IMAPInbox polls a mailbox for unseen messages. Each fetch opens a fresh
// session so transient connection failures heal on the next tick. Satisfies
// Inbox.
type IMAPInbox struct {
	cfg IMAPConfig
}

// NewIMAPInbox validates the config and returns an inbox.
func NewIMAPInbox(cfg IMAPConfig) (*IMAPInbox, error) {
	if cfg.Addr == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("incomplete imap configuration")
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPInbox{cfg: cfg}, nil
}

// FetchUnseen returns all unseen messages, parsed and normalized. Fetching
// the body marks messages seen on the server.
func (i *IMAPInbox) FetchUnseen(ctx context.Context) ([]Inbound, error) {
	c, err := client.DialTLS(i.cfg.Addr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial imap server")
	}
	defer c.Logout()

	if err := c.Login(i.cfg.Username, i.cfg.Password); err != nil {
		return nil, errors.Wrap(err, "imap login failed")
	}
	if _, err := c.Select(i.cfg.Mailbox, false); err != nil {
		return nil, errors.Wrapf(err, "failed to select mailbox %s", i.cfg.Mailbox)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, errors.Wrap(err, "imap search failed")
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}
	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var inbound []Inbound
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		parsed, err := parseMessage(msg.Uid, body)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("uid", msg.Uid).Warn("failed to parse message, skipping")
			continue
		}
		inbound = append(inbound, parsed)
	}
	if err := <-done; err != nil {
		return nil, errors.Wrap(err, "imap fetch failed")
	}
	return inbound, nil
}

// parseMessage walks the MIME structure: the first text/plain part becomes
// the body (falling back to text/html), named parts become attachments.
func parseMessage(uid uint32, body io.Reader) (Inbound, error) {
	mr, err := gomail.CreateReader(body)
	if err != nil {
		return Inbound{}, errors.Wrap(err, "failed to read mime structure")
	}

	msg := Inbound{UID: uid}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].Address
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Inbound{}, errors.Wrap(err, "failed to read mime part")
		}

		switch header := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := header.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && plain == "":
				plain = string(data)
			case strings.HasPrefix(contentType, "text/html") && html == "":
				html = string(data)
			}
		case *gomail.AttachmentHeader:
			filename, err := header.Filename()
			if err != nil || filename == "" {
				continue
			}
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			msg.Attachments = append(msg.Attachments, Attachment{Filename: filename, Data: data})
		}
	}

	msg.Text = plain
	if msg.Text == "" {
		msg.Text = html
	}
	return msg, nil
}
