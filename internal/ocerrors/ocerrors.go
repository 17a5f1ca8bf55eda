// Package ocerrors defines the typed error taxonomy exposed at the engine
// boundary (spec §7). Every operation that can fail returns one of these
// sentinels, optionally wrapped with fmt.Errorf("...: %w", ...) for context.
package ocerrors

import "errors"

// Kind classifies an engine-boundary failure. Callers should use
// errors.Is against the sentinels below rather than switching on Kind
// directly, but Kind is exposed for callers that want to log or branch
// on a stable category (e.g. choosing an HTTP status code).
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindAuthFailed
	KindMalformedAsset
	KindIntegrityFailure
	KindExpired
	KindOutOfRange
	KindNotFound
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindAuthFailed:
		return "AuthFailed"
	case KindMalformedAsset:
		return "MalformedAsset"
	case KindIntegrityFailure:
		return "IntegrityFailure"
	case KindExpired:
		return "Expired"
	case KindOutOfRange:
		return "OutOfRange"
	case KindNotFound:
		return "NotFound"
	case KindIO:
		return "Io"
	default:
		return "Unknown"
	}
}

// Sentinel errors. Wrap with fmt.Errorf("context: %w", ErrX) to add detail
// while preserving errors.Is(err, ErrX) at call sites.
var (
	// ErrInvalidInput: caller violated a precondition (empty username/PIN,
	// non-positive chunk size, unknown user id).
	ErrInvalidInput = errors.New("oksentinel: invalid input")

	// ErrAuthFailed: PIN incorrect, private key cannot unwrap metadata, or
	// sealed blob corrupted. Deliberately conflated per spec §7 so callers
	// cannot distinguish wrong-PIN from tamper/corruption.
	ErrAuthFailed = errors.New("oksentinel: authentication failed")

	// ErrMalformedAsset: missing files, unparseable JSON, missing required
	// fields.
	ErrMalformedAsset = errors.New("oksentinel: malformed asset")

	// ErrIntegrityFailure: manifest hash mismatch or chunk hash mismatch.
	// Always fatal to the current read.
	ErrIntegrityFailure = errors.New("oksentinel: integrity check failed")

	// ErrExpired: now > expiry_at at any checkpoint.
	ErrExpired = errors.New("oksentinel: asset expired")

	// ErrOutOfRange: chunk index outside [0, total_chunks).
	ErrOutOfRange = errors.New("oksentinel: chunk index out of range")

	// ErrNotFound: asset path does not exist.
	ErrNotFound = errors.New("oksentinel: asset not found")

	// ErrIO: underlying file/OS failure.
	ErrIO = errors.New("oksentinel: io failure")
)

// KindOf maps an error produced by this module back to its Kind, by
// unwrapping until one of the sentinels matches. Returns KindUnknown for
// errors this package did not originate.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrAuthFailed):
		return KindAuthFailed
	case errors.Is(err, ErrMalformedAsset):
		return KindMalformedAsset
	case errors.Is(err, ErrIntegrityFailure):
		return KindIntegrityFailure
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrOutOfRange):
		return KindOutOfRange
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}
