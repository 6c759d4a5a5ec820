package store

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

const processedMailKey = "processed_emails"

// MarkMailProcessed records a mail UID as ingested so restarts do not
// re-process it. Idempotent.
func (s *Store) MarkMailProcessed(uid string) error {
	mu := s.global.Get(processedMailKey)
	mu.Lock()
	defer mu.Unlock()

	uids, err := s.loadProcessed()
	if err != nil {
		return err
	}
	for _, u := range uids {
		if u == uid {
			return nil
		}
	}
	uids = append(uids, uid)
	sort.Strings(uids)
	return saveJSON(filepath.Join(s.root, processedMailFile), uids)
}

// IsMailProcessed reports whether a mail UID has already been ingested.
func (s *Store) IsMailProcessed(uid string) (bool, error) {
	mu := s.global.Get(processedMailKey)
	mu.Lock()
	defer mu.Unlock()

	uids, err := s.loadProcessed()
	if err != nil {
		return false, err
	}
	for _, u := range uids {
		if u == uid {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) loadProcessed() ([]string, error) {
	var uids []string
	err := loadJSON(filepath.Join(s.root, processedMailFile), &uids)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load processed mail uids")
	}
	return uids, nil
}
