package engine

import (
	"crypto/rsa"
	"sync"

	"github.com/oksentinel/engine/internal/manifest"
	"github.com/oksentinel/engine/internal/metadata"
)

// Asset is a validated, in-memory handle to an on-disk asset directory:
// manifest, decrypted metadata, and the recipient's unwrapped private
// key, plus its lifecycle state (spec §4.10). Only Validated or Reading
// assets may have chunks decrypted.
type Asset struct {
	mu sync.Mutex

	id   string
	path string

	manifest *manifest.Manifest
	meta     *metadata.Metadata
	priv     *rsa.PrivateKey

	state       State
	terminalErr error
}

// ID returns the asset's UUID, as carried in the manifest.
func (a *Asset) ID() string { return a.id }

// Path returns the on-disk asset directory this handle was loaded from.
func (a *Asset) Path() string { return a.path }

// ChunkCount returns the total number of chunks (spec §2 engine API).
func (a *Asset) ChunkCount() uint32 { return a.manifest.TotalChunks }

// ExpiryAt returns the asset's expiry timestamp (unix seconds).
func (a *Asset) ExpiryAt() int64 { return a.meta.ExpiryAt }

// Filename returns the sender-supplied filename, or "unknown.bin" if
// absent (spec §9 Open Question on legacy assets).
func (a *Asset) Filename() string { return a.meta.DisplayFilename() }

// State reports the asset's current lifecycle state.
func (a *Asset) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// beginRead enforces the Validated|Reading -> Reading transition and the
// defense-in-depth expiry re-check (spec §4.5 step 2, §4.10, §5
// "Expiry is enforced ... at each decrypt_chunk"). It returns the
// terminal error if the asset is already Expired or Aborted.
func (a *Asset) beginRead(nowUnix int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateExpired || a.state == StateAborted {
		return a.terminalErr
	}
	if nowUnix > a.meta.ExpiryAt {
		a.state = StateExpired
		a.terminalErr = newExpiredError(a.id)
		return a.terminalErr
	}
	if a.state == StateValidated {
		a.state = StateReading
	}
	return nil
}

// expireIfPast transitions the asset straight to Expired if nowUnix is
// past its expiry, without forcing the Validated -> Reading transition
// a real read would (used by the periodic sweep, which observes but
// does not "read" an asset). Returns true if this call performed the
// transition.
func (a *Asset) expireIfPast(nowUnix int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateExpired || a.state == StateAborted {
		return false
	}
	if nowUnix > a.meta.ExpiryAt {
		a.state = StateExpired
		a.terminalErr = newExpiredError(a.id)
		return true
	}
	return false
}

// markAborted transitions the asset to Aborted with the given cause,
// unless it is already in a terminal state (spec §4.10 "* -> Aborted").
func (a *Asset) markAborted(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateExpired || a.state == StateAborted {
		return
	}
	a.state = StateAborted
	a.terminalErr = err
}
