package sessionguard

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a [LintWarning].
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is one advisory finding. Lint findings never block Build;
// use [LintResult.AsError] to enforce them.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of findings from [Config.Lint].
type LintResult []LintWarning

// Codes returns the finding codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns findings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing every finding at or above min, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

const (
	lintMaxSessionTTL = 7 * 24 * time.Hour
	lintMaxLeeway     = 30 * time.Second
)

// Lint reports settings that are valid but weaken the deployment. It
// assumes the config already passes Validate.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if !c.Cookie.Secure {
		add("cookie_insecure", LintHigh, "session cookie is sent over plain HTTP")
	}
	if !c.Cookie.HTTPOnly {
		add("cookie_script_readable", LintWarn, "session cookie is readable from scripts")
	}
	if c.Cookie.SameSite == "none" {
		add("samesite_none", LintWarn, "session cookie is sent on cross-site requests")
	}
	if c.Cookie.SigningMethod == "hs256" {
		add("hs256_in_use", LintInfo, "cookie verification needs the signing secret on every verifier")
	}
	if c.Cookie.Leeway > lintMaxLeeway {
		add("leeway_large", LintWarn, fmt.Sprintf("cookie leeway %s exceeds %s", c.Cookie.Leeway, lintMaxLeeway))
	}

	if c.Session.TTL > lintMaxSessionTTL {
		add("session_ttl_long", LintWarn, fmt.Sprintf("session TTL %s exceeds %s", c.Session.TTL, lintMaxSessionTTL))
	}
	if c.Session.SlidingExpiration && c.Session.IdleTimeout == 0 {
		add("sliding_without_idle", LintInfo, "sliding expiration renews straight to the absolute TTL")
	}

	if !c.Security.EnableCreationThrottle {
		add("creation_throttle_disabled", LintWarn, "session creation is not rate limited")
	}
	if !c.Security.RejectEmptyKey {
		add("empty_key_accepted", LintInfo, "sessions with an empty key field pass validation")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "session lifecycle events are not audited")
	}

	return ws
}
