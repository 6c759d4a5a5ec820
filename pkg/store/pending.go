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

// EnqueuePending persists a tool-call payload awaiting review. One pending
// file exists per agent; a newer payload from the same agent replaces it.
func (s *Store) EnqueuePending(claimID, agent string, payload json.RawMessage) error {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	p := claim.PendingPayload{
		Agent:     agent,
		Payload:   payload,
		Processed: false,
		Timestamp: time.Now(),
	}
	return saveJSON(s.pendingPath(claimID, agent), p)
}

// ListUnprocessedPending returns all pending payloads not yet consumed by an
// evaluator, ordered by agent name.
func (s *Store) ListUnprocessedPending(claimID string) ([]claim.PendingPayload, error) {
	dir := filepath.Join(s.claimDir(claimID), pendingDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read pending payloads for %s", claimID)
	}
	var pending []claim.PendingPayload
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), pendingSuffix) {
			continue
		}
		var p claim.PendingPayload
		if err := loadJSON(filepath.Join(dir, e.Name()), &p); err != nil {
			return nil, errors.Wrapf(err, "failed to load pending payload %s", e.Name())
		}
		if !p.Processed {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Agent < pending[j].Agent })
	return pending, nil
}

// MarkPendingProcessed flags the agent's pending payload as consumed.
func (s *Store) MarkPendingProcessed(claimID, agent string) error {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	path := s.pendingPath(claimID, agent)
	var p claim.PendingPayload
	if err := loadJSON(path, &p); err != nil {
		return errors.Wrapf(err, "failed to load pending payload for %s", agent)
	}
	p.Processed = true
	return saveJSON(path, p)
}

func (s *Store) pendingPath(claimID, agent string) string {
	return filepath.Join(s.claimDir(claimID), pendingDir, agent+pendingSuffix)
}

// PutDecision records the evaluator verdict for an agent, replacing any prior
// decision for the same agent.
func (s *Store) PutDecision(claimID, agent string, decision json.RawMessage) error {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	path := s.fpath(claimID, decisionsFile)
	var decisions []claim.Decision
	if err := loadJSON(path, &decisions); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to load decisions for %s", claimID)
	}
	kept := decisions[:0]
	for _, d := range decisions {
		if d.Agent != agent {
			kept = append(kept, d)
		}
	}
	kept = append(kept, claim.Decision{Agent: agent, Decision: decision, Timestamp: time.Now()})
	return saveJSON(path, kept)
}

// Decisions returns all recorded decisions for a claim.
func (s *Store) Decisions(claimID string) ([]claim.Decision, error) {
	var decisions []claim.Decision
	err := loadJSON(s.fpath(claimID, decisionsFile), &decisions)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to load decisions for %s", claimID)
	}
	return decisions, nil
}

// AppendFollowup queues an open question raised by an agent.
func (s *Store) AppendFollowup(claimID, agent, question string) error {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	path := s.fpath(claimID, followUpFile)
	queue := followupQueue{}
	if err := loadJSON(path, &queue); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to load follow-up queue for %s", claimID)
	}
	queue.Responses = append(queue.Responses, claim.FollowUp{
		Agent:     agent,
		Question:  question,
		Timestamp: time.Now(),
	})
	return saveJSON(path, queue)
}

// ListFollowups returns the queued follow-up questions without consuming them.
func (s *Store) ListFollowups(claimID string) ([]claim.FollowUp, error) {
	queue := followupQueue{}
	err := loadJSON(s.fpath(claimID, followUpFile), &queue)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to load follow-up queue for %s", claimID)
	}
	return queue.Responses, nil
}

// TakeFollowups atomically reads and removes the follow-up queue. Callers that
// must only drain after a successful send should use ListFollowups first and
// TakeFollowups once the send has succeeded.
func (s *Store) TakeFollowups(claimID string) ([]claim.FollowUp, error) {
	mu := s.locks.Get(claimID)
	mu.Lock()
	defer mu.Unlock()

	path := s.fpath(claimID, followUpFile)
	queue := followupQueue{}
	err := loadJSON(path, &queue)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load follow-up queue for %s", claimID)
	}
	if err := os.Remove(path); err != nil {
		return nil, errors.Wrapf(err, "failed to drain follow-up queue for %s", claimID)
	}
	return queue.Responses, nil
}

type followupQueue struct {
	Responses []claim.FollowUp `json:"responses"`
}
