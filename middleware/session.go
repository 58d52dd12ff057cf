package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/session"
)

type sessionStateContextKey struct{}

type sessionState struct {
	resolution *sessionguard.Resolution
	modified   bool
	destroyed  bool
}

// SessionFromContext returns the session attached by Ensure or Require.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	st, ok := stateFromContext(ctx)
	if !ok || st.destroyed {
		return nil, false
	}
	return st.resolution.Session, true
}

// ResolutionFromContext returns how Ensure obtained the request's session.
func ResolutionFromContext(ctx context.Context) (*sessionguard.Resolution, bool) {
	st, ok := stateFromContext(ctx)
	if !ok {
		return nil, false
	}
	return st.resolution, true
}

// MarkModified asks the middleware to persist the session after the
// handler returns. Unmodified sessions are not rewritten.
func MarkModified(ctx context.Context) {
	if st, ok := stateFromContext(ctx); ok {
		st.modified = true
	}
}

// DestroySession deletes the request's session and clears its cookie.
func DestroySession(ctx context.Context, w http.ResponseWriter, guard *sessionguard.Guard) error {
	st, ok := stateFromContext(ctx)
	if !ok || st.destroyed {
		return nil
	}
	if err := guard.Destroy(ctx, st.resolution.Session.ID); err != nil {
		return err
	}
	st.destroyed = true
	http.SetCookie(w, guard.ExpiredCookie())
	return nil
}

// Ensure guarantees every request reaches next with a complete session.
// Missing or incomplete sessions are replaced and the new cookie is set.
func Ensure(guard *sessionguard.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if guard == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := withRemoteIP(r)
			res, err := guard.Resume(ctx, guard.TokenFromRequest(r))
			if err != nil {
				writeResumeError(w, err)
				return
			}
			if res.Created {
				http.SetCookie(w, guard.SessionCookie(res.Token))
			}

			serveWithSession(w, r.WithContext(ctx), next, guard, res)
		})
	}
}

// Require passes only requests that already carry a complete session.
// It never mints a session; anything else is rejected with 401.
func Require(guard *sessionguard.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if guard == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := withRemoteIP(r)
			token := guard.TokenFromRequest(r)
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := guard.Lookup(ctx, token)
			if err != nil {
				if errors.Is(err, sessionguard.ErrRedisUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res := &sessionguard.Resolution{
				Session: sess,
				Token:   token,
				Reason:  sessionguard.ReasonResumed,
			}
			serveWithSession(w, r.WithContext(ctx), next, guard, res)
		})
	}
}

func serveWithSession(w http.ResponseWriter, r *http.Request, next http.Handler, guard *sessionguard.Guard, res *sessionguard.Resolution) {
	st := &sessionState{resolution: res}
	ctx := context.WithValue(r.Context(), sessionStateContextKey{}, st)

	next.ServeHTTP(w, r.WithContext(ctx))

	if st.modified && !st.destroyed {
		// The response is already written and the client may be gone.
		saveCtx := context.WithoutCancel(ctx)
		if err := guard.Save(saveCtx, res.Session); err != nil {
			guard.Logger().ErrorContext(saveCtx, "session save failed after handler",
				"session_id", res.Session.ID,
				"path", r.URL.Path,
				"error", err,
			)
		}
	}
}

func writeResumeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionguard.ErrSessionCreationThrottled):
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	default:
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}
}

func stateFromContext(ctx context.Context) (*sessionState, bool) {
	if ctx == nil {
		return nil, false
	}
	st, ok := ctx.Value(sessionStateContextKey{}).(*sessionState)
	return st, ok && st != nil
}

// withRemoteIP tags the request context with the peer address. Forwarded
// headers are not trusted here; a proxy should rewrite RemoteAddr.
func withRemoteIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return r.Context()
	}
	return sessionguard.WithClientIP(r.Context(), host)
}
