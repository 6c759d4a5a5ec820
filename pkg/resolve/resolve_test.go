package resolve

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axelsure/claimflow/pkg/claim"
	"github.com/axelsure/claimflow/pkg/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"plain", "My car was hit", "my car was hit"},
		{"reply prefix", "Re: My car was hit", "my car was hit"},
		{"forward prefix", "FWD:   My car was hit", "my car was hit"},
		{"fw prefix", "Fw: update", "update"},
		{"tag stripped", "Update [CLM-ABCDEF1234]", "update"},
		{"bare tag stripped", "Update CLM-ABCDEF1234", "update"},
		{"tag only is empty", "[CLM-ABCDEF1234]", ""},
		{"whitespace collapsed", "  my   car \t was hit ", "my car was hit"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSubject(tt.subject))
		})
	}
}

func TestFingerprint(t *testing.T) {
	sum := sha1.Sum([]byte("alice@example.com|my car was hit"))
	want := hex.EncodeToString(sum[:])
	assert.Equal(t, want, Fingerprint("alice@example.com", "my car was hit"))
}

func TestMintClaimID(t *testing.T) {
	pattern := regexp.MustCompile(`^CLM-[0-9A-F]{10}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := MintClaimID()
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "minted ids should not collide")
		seen[id] = true
	}
}

func TestResolveMintsForFirstContact(t *testing.T) {
	r := New(newStore(t))

	id, minted, err := r.Resolve("alice@example.com", "My car was hit")
	require.NoError(t, err)
	assert.True(t, minted)
	assert.Regexp(t, `^CLM-[0-9A-F]{10}$`, id)
}

func TestResolveByFingerprint(t *testing.T) {
	s := newStore(t)
	r := New(s)

	c := claim.New("CLM-AB12CD34EF", "alice@example.com")
	c.SubjectFP = Fingerprint("alice@example.com", "my car was hit")
	c.Stage = claim.StageQuestioned
	require.NoError(t, s.SaveClaim(c))

	// a reply threads into the same claim
	id, minted, err := r.Resolve("alice@example.com", "Re: My car was hit")
	require.NoError(t, err)
	assert.False(t, minted)
	assert.Equal(t, "CLM-AB12CD34EF", id)

	// a different sender with the same subject does not
	_, minted, err = r.Resolve("mallory@example.com", "Re: My car was hit")
	require.NoError(t, err)
	assert.True(t, minted)
}

func TestResolveBySubjectTag(t *testing.T) {
	s := newStore(t)
	r := New(s)

	c := claim.New("CLM-AB12CD34EF", "alice@example.com")
	c.Stage = claim.StageAgentsRunning
	require.NoError(t, s.SaveClaim(c))

	id, minted, err := r.Resolve("someone-else@example.com", "Update on [clm-ab12cd34ef]")
	require.NoError(t, err)
	assert.False(t, minted)
	assert.Equal(t, "CLM-AB12CD34EF", id)
}

func TestResolveStaleTagFallsBackToOpenClaim(t *testing.T) {
	s := newStore(t)
	r := New(s)

	c := claim.New("CLM-AB12CD34EF", "alice@example.com")
	c.SubjectFP = Fingerprint("alice@example.com", "my car was hit")
	c.Stage = claim.StageAgentsRunning
	require.NoError(t, s.SaveClaim(c))

	// tag does not resolve, fingerprint of "update" does not match, but Alice
	// has exactly one open claim
	id, minted, err := r.Resolve("alice@example.com", "Update [CLM-ABCDEF1234]")
	require.NoError(t, err)
	assert.False(t, minted)
	assert.Equal(t, "CLM-AB12CD34EF", id)
}

func TestResolveEmptySubjectFallsBackToOpenClaim(t *testing.T) {
	s := newStore(t)
	r := New(s)

	open := claim.New("CLM-AB12CD34EF", "alice@example.com")
	open.Stage = claim.StageQuestioned
	require.NoError(t, s.SaveClaim(open))

	done := claim.New("CLM-0123456789", "alice@example.com")
	done.Stage = claim.StageComplete
	require.NoError(t, s.SaveClaim(done))

	id, minted, err := r.Resolve("alice@example.com", "")
	require.NoError(t, err)
	assert.False(t, minted)
	assert.Equal(t, "CLM-AB12CD34EF", id)
}

func TestResolveEmptySubjectAmbiguousMints(t *testing.T) {
	s := newStore(t)
	r := New(s)

	for _, id := range []string{"CLM-AAAAAAAAAA", "CLM-BBBBBBBBBB"} {
		c := claim.New(id, "alice@example.com")
		c.Stage = claim.StageQuestioned
		require.NoError(t, s.SaveClaim(c))
	}

	_, minted, err := r.Resolve("alice@example.com", "")
	require.NoError(t, err)
	assert.True(t, minted)
}

func TestResolveDeterministic(t *testing.T) {
	s := newStore(t)
	r := New(s)

	c := claim.New("CLM-AB12CD34EF", "alice@example.com")
	c.SubjectFP = Fingerprint("alice@example.com", "my car was hit")
	require.NoError(t, s.SaveClaim(c))

	first, _, err := r.Resolve("alice@example.com", "Re: My car was hit")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := r.Resolve("alice@example.com", "Re: My car was hit")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
