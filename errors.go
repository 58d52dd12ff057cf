package sessionguard

import (
	"errors"

	"github.com/MrEthical07/sessionguard/cookie"
	"github.com/MrEthical07/sessionguard/keys"
	"github.com/MrEthical07/sessionguard/seal"
	"github.com/MrEthical07/sessionguard/session"
)

var (
	// ErrEntropySource is returned when the OS random source fails during
	// key or session ID generation. It is fatal to session creation.
	ErrEntropySource = keys.ErrEntropySource
	// ErrSessionInvalid is returned when a session lacks one of the
	// required fields, or carries no usable key.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionNotFound is returned when a session is missing or expired.
	ErrSessionNotFound = session.ErrSessionNotFound
	// ErrSessionTooLarge is returned when a session exceeds Session.MaxValuesSize.
	ErrSessionTooLarge = session.ErrSessionTooLarge
	// ErrSessionCreationThrottled is returned when a client created too many
	// sessions inside the configured window.
	ErrSessionCreationThrottled = errors.New("session creation throttled")
	// ErrRedisUnavailable wraps every backend failure.
	ErrRedisUnavailable = session.ErrRedisUnavailable
	// ErrCookieInvalid is returned for a session cookie that fails verification.
	ErrCookieInvalid = cookie.ErrTokenInvalid
	// ErrSealInvalid is returned when sealed state cannot be opened.
	ErrSealInvalid = seal.ErrSealInvalid
	// ErrGuardNotReady is returned by methods called on a nil or unbuilt Guard.
	ErrGuardNotReady = errors.New("guard not initialized")
)
