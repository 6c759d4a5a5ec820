// Package resolve maps inbound mail to claim sessions. Resolution precedence,
// first hit wins: an explicit CLM- subject tag with an existing session, the
// sender+subject fingerprint, the sender's single open claim when the subject
// is empty, and finally a freshly minted claim id.
package resolve

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/axelsure/claimflow/pkg/claim"
)

var (
	tagPattern    = regexp.MustCompile(`(?i)CLM-[A-Za-z0-9-]{6,}`)
	replyPrefix   = regexp.MustCompile(`(?i)^(re|fwd|fw):\s*`)
	bracketedTag  = regexp.MustCompile(`(?i)\[?CLM-[A-Za-z0-9-]{6,}\]?`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Store is the subset of the session store the resolver needs.
type Store interface {
	LoadClaim(claimID string) (*claim.Claim, error)
	ScanClaims(pred func(*claim.Claim) bool) ([]string, error)
}

// Resolver maps (sender, subject) pairs to claim ids.
type Resolver struct {
	store Store
}

// New returns a resolver backed by the given store.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// NormalizeSubject lowercases the subject, strips a leading reply/forward
// prefix and any CLM- tags, and collapses whitespace.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(strings.ToLower(subject))
	s = replyPrefix.ReplaceAllString(s, "")
	s = bracketedTag.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint returns the stable hash binding a sender to a normalized
// subject. Immutable for the lifetime of a claim once stored.
func Fingerprint(sender, normalizedSubject string) string {
	sum := sha1.Sum([]byte(sender + "|" + normalizedSubject))
	return hex.EncodeToString(sum[:])
}

// MintClaimID allocates a new claim id: CLM- followed by 10 uppercase hex
// characters.
func MintClaimID() string {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return fmt.Sprintf("CLM-%s", strings.ToUpper(hex.EncodeToString(b[:])))
}

// Resolve returns the claim id for an inbound message and whether the id was
// freshly minted. Resolution is deterministic for a fixed store.
func (r *Resolver) Resolve(sender, subject string) (claimID string, minted bool, err error) {
	// 1. Explicit subject tag, if a session already exists for it.
	tagged := false
	if tag := tagPattern.FindString(subject); tag != "" {
		tagged = true
		id := strings.ToUpper(tag)
		c, err := r.store.LoadClaim(id)
		if err != nil {
			return "", false, errors.Wrap(err, "failed to look up tagged claim")
		}
		if c != nil {
			return id, false, nil
		}
	}

	normalized := NormalizeSubject(subject)

	// 2. Sender + subject fingerprint; fires only on exactly one match.
	fp := Fingerprint(sender, normalized)
	matches, err := r.store.ScanClaims(func(c *claim.Claim) bool {
		return c.SenderEmail == sender && c.SubjectFP == fp
	})
	if err != nil {
		return "", false, errors.Wrap(err, "failed to scan claims for fingerprint")
	}
	if len(matches) == 1 {
		return matches[0], false, nil
	}

	// 3. Last-active fallback: an empty subject, or a tagged reply whose tag
	// no longer resolves, routes to the sender's single open claim.
	if normalized == "" || tagged {
		open, err := r.store.ScanClaims(func(c *claim.Claim) bool {
			return c.SenderEmail == sender && c.Stage != claim.StageComplete
		})
		if err != nil {
			return "", false, errors.Wrap(err, "failed to scan open claims")
		}
		if len(open) == 1 {
			return open[0], false, nil
		}
	}

	// 4. New conversation.
	return MintClaimID(), true, nil
}
