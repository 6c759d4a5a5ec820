// Package store implements the durable per-claim session store. Each claim
// owns one directory under the sessions root:
//
//	claim_<id>/
//	    claim.json              claim record
//	    context.json            conversation history + attachment descriptions
//	    attachment_data.json    attachment description mapping
//	    parsed_docs.json        extracted text per attachment
//	    decisions.json          one decision per agent
//	    follow_up.json          queued open questions
//	    <agent>_messages.json   per-agent transcript
//	    pending_payloads/       <agent>_pending.json tool-call payloads
//	    attachments/            attachment binaries
//
// A global processed_emails.json at the root records ingested mail UIDs.
// Every mutation is persisted before the call returns; writes go through a
// temp file and rename so a partially written record is never observable.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/claim"
)

const (
	claimFile          = "claim.json"
	contextFile        = "context.json"
	attachmentDataFile = "attachment_data.json"
	parsedDocsFile     = "parsed_docs.json"
	decisionsFile      = "decisions.json"
	followUpFile       = "follow_up.json"
	followUpEmailFile  = "follow_up_email.json"
	clarifyingFile     = "clarifying_question.json"
	processedMailFile  = "processed_emails.json"
	pendingDir         = "pending_payloads"
	attachmentsDir     = "attachments"
	pendingSuffix      = "_pending.json"
)

// Store is the session store. Operations on the same claim are serialized by a
// per-claim mutex; operations on different claims proceed in parallel.
type Store struct {
	root   string
	locks  *MutexRegistry
	global *MutexRegistry // processed-mail file and other root-level state
}

// New opens (and creates if needed) a session store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create sessions directory")
	}
	return &Store{
		root:   dir,
		locks:  NewMutexRegistry(),
		global: NewMutexRegistry(),
	}, nil
}

// Root returns the sessions root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) claimDir(claimID string) string {
	return filepath.Join(s.root, "claim_"+claimID)
}

func (s *Store) fpath(claimID, name string) string {
	return filepath.Join(s.claimDir(claimID), name)
}

// AttachmentsDir returns the attachment binary directory for a claim,
// creating it if needed.
func (s *Store) AttachmentsDir(claimID string) (string, error) {
	dir := filepath.Join(s.claimDir(claimID), attachmentsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create attachments directory")
	}
	return dir, nil
}

// AttachmentPath returns the path of a stored attachment binary.
func (s *Store) AttachmentPath(claimID, filename string) string {
	return filepath.Join(s.claimDir(claimID), attachmentsDir, filename)
}

// SaveAttachment persists an attachment binary and returns its stored name.
// Path separators in the original filename are replaced.
func (s *Store) SaveAttachment(claimID, filename string, data []byte) (string, error) {
	dir, err := s.AttachmentsDir(claimID)
	if err != nil {
		return "", err
	}
	name := strings.ReplaceAll(strings.ReplaceAll(filename, "/", "_"), "\\", "_")
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write attachment %s", name)
	}
	return name, nil
}

// saveJSON writes v to path atomically: temp file in the same directory, then
// rename.
func saveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to rename temp file")
	}
	return nil
}

// loadJSON reads path into v. Returns os.ErrNotExist wrapped if missing.
func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to unmarshal %s", filepath.Base(path))
	}
	return nil
}

// LoadClaim returns the claim record, or nil if no session exists for the id.
func (s *Store) LoadClaim(claimID string) (*claim.Claim, error) {
	var c claim.Claim
	err := loadJSON(s.fpath(claimID, claimFile), &c)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load claim %s", claimID)
	}
	return &c, nil
}

// SaveClaim atomically persists the claim record, stamping UpdatedAt.
func (s *Store) SaveClaim(c *claim.Claim) error {
	mu := s.locks.Get(c.ClaimID)
	mu.Lock()
	defer mu.Unlock()
	return s.saveClaimLocked(c)
}

func (s *Store) saveClaimLocked(c *claim.Claim) error {
	c.UpdatedAt = time.Now()
	return saveJSON(s.fpath(c.ClaimID, claimFile), c)
}

// UpdateClaim loads the claim, applies mutate, and saves it back under the
// per-claim mutex. The claim must exist.
func (s *Store) UpdateClaim(claimID string, mutate func(*claim.Claim) error) (*claim.Claim, error) {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.LoadClaim(claimID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.Errorf("claim not found: %s", claimID)
	}
	if err := mutate(c); err != nil {
		return nil, err
	}
	if err := s.saveClaimLocked(c); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadContext returns the conversation context, merging in the attachment
// description mapping if one has been produced.
func (s *Store) LoadContext(claimID string) (claim.Context, error) {
	ctx := claim.Context{AttachmentDetails: map[string]string{}}
	err := loadJSON(s.fpath(claimID, contextFile), &ctx)
	if err != nil && !os.IsNotExist(err) {
		return ctx, errors.Wrapf(err, "failed to load context for %s", claimID)
	}
	if ctx.AttachmentDetails == nil {
		ctx.AttachmentDetails = map[string]string{}
	}
	details := map[string]string{}
	if err := loadJSON(s.fpath(claimID, attachmentDataFile), &details); err == nil {
		for k, v := range details {
			ctx.AttachmentDetails[k] = v
		}
	}
	return ctx, nil
}

// AppendConversation appends an entry to the claim conversation.
func (s *Store) AppendConversation(claimID string, entry claim.ConversationEntry) error {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	path := s.fpath(claimID, contextFile)
	ctx := claim.Context{AttachmentDetails: map[string]string{}}
	if err := loadJSON(path, &ctx); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to load context for %s", claimID)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	ctx.ConversationHistory = append(ctx.ConversationHistory, entry)
	ctx.LastUpdated = time.Now()
	return saveJSON(path, ctx)
}

// RecordParsedDoc stores extracted text for a filename. Idempotent: once a
// filename has an entry it is never overwritten.
func (s *Store) RecordParsedDoc(claimID, filename, text string) error {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	path := s.fpath(claimID, parsedDocsFile)
	parsed := map[string]string{}
	if err := loadJSON(path, &parsed); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to load parsed docs for %s", claimID)
	}
	if _, ok := parsed[filename]; ok {
		return nil
	}
	parsed[filename] = text
	return saveJSON(path, parsed)
}

// ParsedDocs returns the filename -> extracted text mapping.
func (s *Store) ParsedDocs(claimID string) (map[string]string, error) {
	parsed := map[string]string{}
	err := loadJSON(s.fpath(claimID, parsedDocsFile), &parsed)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to load parsed docs for %s", claimID)
	}
	return parsed, nil
}

// WriteAttachmentDescriptions persists the filename -> details mapping,
// merging with any existing descriptions.
func (s *Store) WriteAttachmentDescriptions(claimID string, details map[string]string) error {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	path := s.fpath(claimID, attachmentDataFile)
	existing := map[string]string{}
	if err := loadJSON(path, &existing); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to load attachment descriptions for %s", claimID)
	}
	for k, v := range details {
		existing[k] = v
	}
	return saveJSON(path, existing)
}

// AppendAgentMessage appends a transcript entry to <agent>_messages.json.
func (s *Store) AppendAgentMessage(claimID, agent, role, content string) error {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	path := s.fpath(claimID, agent+"_messages.json")
	var msgs []claim.ConversationEntry
	if err := loadJSON(path, &msgs); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to load %s transcript for %s", agent, claimID)
	}
	msgs = append(msgs, claim.ConversationEntry{Role: role, Content: content, Timestamp: time.Now()})
	return saveJSON(path, msgs)
}

// AgentMessages returns the transcript for one agent.
func (s *Store) AgentMessages(claimID, agent string) ([]claim.ConversationEntry, error) {
	var msgs []claim.ConversationEntry
	err := loadJSON(s.fpath(claimID, agent+"_messages.json"), &msgs)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to load %s transcript for %s", agent, claimID)
	}
	return msgs, nil
}

// SaveClarifyingQuestion persists the generated clarifying question.
func (s *Store) SaveClarifyingQuestion(claimID, question string) error {
	return saveJSON(s.fpath(claimID, clarifyingFile), map[string]string{"clarifying_question": question})
}

// SaveFollowupEmail persists the generated follow-up email HTML.
func (s *Store) SaveFollowupEmail(claimID, html string) error {
	return saveJSON(s.fpath(claimID, followUpEmailFile), map[string]string{"email_html": html})
}

// DeleteClaim removes the claim directory and everything in it.
func (s *Store) DeleteClaim(claimID string) error {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()
	return os.RemoveAll(s.claimDir(claimID))
}

// ScanClaims returns the ids of all claims matching the predicate. A nil
// predicate matches everything. Each claim.json is read as a consistent
// snapshot; reads may interleave across claims.
func (s *Store) ScanClaims(pred func(*claim.Claim) bool) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read sessions directory")
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "claim_") {
			continue
		}
		id := strings.TrimPrefix(e.Name(), "claim_")
		c, err := s.LoadClaim(id)
		if err != nil || c == nil {
			continue
		}
		if pred == nil || pred(c) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
