package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeySessionID  = "session_id"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"
	KeyState      = "state"
	KeyStatus     = "status"
	KeyCategory   = "category"
	KeyDetector   = "detector"
	KeyDecision   = "decision"
	KeyImageTag   = "image_tag"
	KeyPath       = "path"
	KeyRepo       = "repository"
	KeyComponent  = "component"
	KeyDurationMS = "duration_ms"
	KeyExitCode   = "exit_code"
	KeyError      = "error"
)

func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }
func Attempt(n int) slog.Attr       { return slog.Int(KeyAttempt, n) }
func MaxRetries(n int) slog.Attr    { return slog.Int(KeyMaxRetries, n) }
func State(s string) slog.Attr      { return slog.String(KeyState, s) }
func Status(s string) slog.Attr     { return slog.String(KeyStatus, s) }
func Category(c string) slog.Attr   { return slog.String(KeyCategory, c) }
func Detector(d string) slog.Attr   { return slog.String(KeyDetector, d) }
func Decision(d string) slog.Attr   { return slog.String(KeyDecision, d) }
func ImageTag(t string) slog.Attr   { return slog.String(KeyImageTag, t) }
func Path(p string) slog.Attr       { return slog.String(KeyPath, p) }
func Repository(r string) slog.Attr { return slog.String(KeyRepo, r) }
func Component(c string) slog.Attr  { return slog.String(KeyComponent, c) }
func ExitCode(code int) slog.Attr   { return slog.Int(KeyExitCode, code) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
