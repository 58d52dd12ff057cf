package sessionguard

import (
	"context"
	"fmt"

	"github.com/MrEthical07/sessionguard/session"
	"github.com/google/uuid"
)

// ResolveReason explains how Resume arrived at its session.
type ResolveReason string

const (
	// ReasonResumed means the presented session was complete and kept.
	ReasonResumed ResolveReason = "resumed"
	// ReasonNoCookie means the request carried no session cookie.
	ReasonNoCookie ResolveReason = "no_cookie"
	// ReasonCookieInvalid means the cookie failed verification.
	ReasonCookieInvalid ResolveReason = "cookie_invalid"
	// ReasonNotFound means the cookie named a missing or expired session.
	ReasonNotFound ResolveReason = "not_found"
	// ReasonUnreadable means the stored blob could not be decoded.
	ReasonUnreadable ResolveReason = "unreadable"
	// ReasonIncomplete means the stored session lacked a required field.
	ReasonIncomplete ResolveReason = "incomplete"
)

// Resolution is the outcome of [Guard.Resume] or [Guard.Create].
type Resolution struct {
	Session *session.Session
	// Token is the signed cookie value identifying Session.
	Token string
	// Created is true when Session was minted for this request and the
	// cookie must be (re)sent.
	Created bool
	Reason  ResolveReason
	// PreviousID is the rejected session ID, if one was presented.
	PreviousID string
}

// Initializer fills the fields of a freshly begun session other than its
// key. It runs once per new session, before the first save.
type Initializer func(ctx context.Context, values session.Values) error

// DefaultInitializer assigns a random v4 uuid, [DefaultPreferences] and
// auth=false.
func DefaultInitializer(_ context.Context, values session.Values) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEntropySource, err)
	}
	values[session.FieldUUID] = id.String()
	if !values.Has(session.FieldConfig) {
		values[session.FieldConfig] = DefaultPreferences()
	}
	values[session.FieldAuth] = false
	return nil
}

// DefaultPreferences returns the per-user search preferences stored
// under the config field of a new session.
func DefaultPreferences() map[string]any {
	return map[string]any{
		"lang_search":    "",
		"lang_interface": "",
		"country":        "",
		"safe":           true,
		"dark":           false,
		"theme":          "system",
		"new_tab":        false,
		"view_image":     false,
		"get_only":       false,
		"anon_view":      false,
		"tor":            false,
	}
}
