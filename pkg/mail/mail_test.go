package mail

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissible(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		maxSize  int64
		want     bool
	}{
		{"pdf accepted", "report.pdf", 1024, 0, true},
		{"uppercase extension", "PHOTO.JPG", 1024, 0, true},
		{"archive accepted", "evidence.zip", 1024, 0, true},
		{"executable rejected", "malware.exe", 1024, 0, false},
		{"no extension rejected", "README", 1024, 0, false},
		{"oversize rejected", "huge.pdf", DefaultMaxAttachmentSize + 1, 0, false},
		{"at the default cap accepted", "exact.pdf", DefaultMaxAttachmentSize, 0, true},
		{"configured cap rejects", "small.pdf", 2048, 1024, false},
		{"configured cap accepts", "small.pdf", 1024, 1024, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Admissible(tt.filename, tt.size, tt.maxSize))
		})
	}
}

func TestBareAddress(t *testing.T) {
	assert.Equal(t, "alice@example.com", BareAddress("Alice Smith <alice@example.com>"))
	assert.Equal(t, "alice@example.com", BareAddress("alice@example.com"))
	assert.Equal(t, "not-an-address", BareAddress(" not-an-address "))
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("claims@axelsure.com", "alice@example.com", "Quick clarification needed to process your claim", "<p>hello</p>"))

	assert.Contains(t, msg, "From: claims@axelsure.com\r\n")
	assert.Contains(t, msg, "To: alice@example.com\r\n")
	assert.Contains(t, msg, "Subject: Quick clarification needed to process your claim\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.Contains(t, msg, "Message-ID: <")
	assert.True(t, strings.HasSuffix(msg, "<p>hello</p>\r\n"))
}

func TestNewSMTPSenderValidatesConfig(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", s.cfg.From)
}

func TestNewIMAPInboxValidatesConfig(t *testing.T) {
	_, err := NewIMAPInbox(IMAPConfig{Addr: "imap.example.com:993"})
	assert.Error(t, err)

	inbox, err := NewIMAPInbox(IMAPConfig{Addr: "imap.example.com:993", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "INBOX", inbox.cfg.Mailbox)
}

func TestParseMessagePlainWithAttachment(t *testing.T) {
	raw := strings.Join([]string{
		"From: Alice Smith <alice@example.com>",
		"Subject: My car was hit",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUND"`,
		"",
		"--BOUND",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"A van hit my parked car this morning.",
		"--BOUND",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="police_report.pdf"`,
		"",
		"%PDF-fake",
		"--BOUND--",
		"",
	}, "\r\n")

	msg, err := parseMessage(42, strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, uint32(42), msg.UID)
	assert.Equal(t, "alice@example.com", msg.Sender)
	assert.Equal(t, "My car was hit", msg.Subject)
	assert.Contains(t, msg.Text, "A van hit my parked car")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "police_report.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "%PDF-fake", string(msg.Attachments[0].Data))
}

func TestParseMessageHTMLFallback(t *testing.T) {
	raw := strings.Join([]string{
		"From: alice@example.com",
		"Subject: Update",
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>the damage photos are attached</p>",
		"",
	}, "\r\n")

	msg, err := parseMessage(7, strings.NewReader(raw))
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "damage photos")
}

// ---- ingress fakes ----

type fakeInbox struct {
	messages []Inbound
	err      error
}

func (f *fakeInbox) FetchUnseen(context.Context) ([]Inbound, error) { return f.messages, f.err }

type fakeResolver struct {
	claimID string
	err     error
}

func (f *fakeResolver) Resolve(string, string) (string, bool, error) {
	return f.claimID, false, f.err
}

type fakeSessionStore struct {
	processed   map[string]bool
	attachments []string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{processed: map[string]bool{}}
}

func (f *fakeSessionStore) IsMailProcessed(uid string) (bool, error) { return f.processed[uid], nil }
func (f *fakeSessionStore) MarkMailProcessed(uid string) error {
	f.processed[uid] = true
	return nil
}
func (f *fakeSessionStore) SaveAttachment(_, filename string, _ []byte) (string, error) {
	f.attachments = append(f.attachments, filename)
	return filename, nil
}

type fakeOrchestrator struct {
	calls []string
	err   error
}

func (f *fakeOrchestrator) Orchestrate(_ context.Context, claimID, _, _, _ string, _ []string) error {
	f.calls = append(f.calls, claimID)
	return f.err
}

func TestIngressTickRoutesMessage(t *testing.T) {
	inbox := &fakeInbox{messages: []Inbound{{
		UID:     1,
		Sender:  "Alice <alice@example.com>",
		Subject: "My car was hit",
		Text:    "A van hit my parked car.",
		Attachments: []Attachment{
			{Filename: "report.pdf", Data: []byte("ok")},
			{Filename: "virus.exe", Data: []byte("nope")},
		},
	}}}
	store := newFakeSessionStore()
	orch := &fakeOrchestrator{}

	ing := NewIngress(inbox, &fakeResolver{claimID: "CLM-AB12CD34EF"}, store, orch, 0)
	ing.Tick(context.Background())

	assert.Equal(t, []string{"CLM-AB12CD34EF"}, orch.calls)
	assert.Equal(t, []string{"report.pdf"}, store.attachments)
	assert.True(t, store.processed["1"])
}

func TestIngressHonorsConfiguredAttachmentCap(t *testing.T) {
	inbox := &fakeInbox{messages: []Inbound{{
		UID:     5,
		Sender:  "alice@example.com",
		Subject: "Photos",
		Attachments: []Attachment{
			{Filename: "small.jpg", Data: []byte("12345678")},
			{Filename: "big.jpg", Data: []byte("123456789012345678901")},
		},
	}}}
	store := newFakeSessionStore()
	orch := &fakeOrchestrator{}

	ing := NewIngress(inbox, &fakeResolver{claimID: "CLM-AB12CD34EF"}, store, orch, 0,
		WithMaxAttachmentSize(16))
	ing.Tick(context.Background())

	assert.Equal(t, []string{"small.jpg"}, store.attachments)
}

func TestIngressSkipsProcessedUIDs(t *testing.T) {
	inbox := &fakeInbox{messages: []Inbound{{UID: 9, Sender: "a@b.c", Subject: "x"}}}
	store := newFakeSessionStore()
	store.processed["9"] = true
	orch := &fakeOrchestrator{}

	ing := NewIngress(inbox, &fakeResolver{claimID: "CLM-AB12CD34EF"}, store, orch, 0)
	ing.Tick(context.Background())

	assert.Empty(t, orch.calls)
}

func TestIngressMarksProcessedEvenWhenOrchestrationFails(t *testing.T) {
	inbox := &fakeInbox{messages: []Inbound{{UID: 3, Sender: "a@b.c", Subject: "x"}}}
	store := newFakeSessionStore()
	orch := &fakeOrchestrator{err: errors.New("llm unavailable")}

	ing := NewIngress(inbox, &fakeResolver{claimID: "CLM-AB12CD34EF"}, store, orch, 0)
	ing.Tick(context.Background())

	assert.True(t, store.processed["3"], "at-most-once orchestration per message")
}

func TestIngressIsolatesPerMessageFailures(t *testing.T) {
	inbox := &fakeInbox{messages: []Inbound{
		{UID: 1, Sender: "a@b.c", Subject: "x"},
		{UID: 2, Sender: "b@c.d", Subject: "y"},
	}}
	store := newFakeSessionStore()
	orch := &fakeOrchestrator{}

	// resolver fails for every message; the batch still completes
	ing := NewIngress(inbox, &fakeResolver{err: errors.New("store offline")}, store, orch, 0)
	ing.Tick(context.Background())

	assert.Empty(t, orch.calls)
	assert.False(t, store.processed["1"])
	assert.False(t, store.processed["2"])
}
