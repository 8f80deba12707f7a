package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a build session.
type Status string

const (
	StatusRunning       Status = "running"
	StatusSucceeded     Status = "succeeded"
	StatusExhausted     Status = "exhausted"
	StatusUnrecoverable Status = "unrecoverable"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusExhausted || s == StatusUnrecoverable
}

// LogChunk is one piece of build tool output.
type LogChunk struct {
	Stream string `json:"stream"` // stdout|stderr|system
	Text   string `json:"text"`
}

// AttemptRecord is the immutable record of one invoke-classify-decide cycle.
type AttemptRecord struct {
	Number           int               `json:"attempt"`
	Definition       string            `json:"definition"`
	DefinitionDigest string            `json:"definition_digest"`
	Output           []LogChunk        `json:"output"`
	Success          bool              `json:"success"`
	ExitCode         int               `json:"exit_code"`
	Errors           []ClassifiedError `json:"errors"`
	Decision         string            `json:"decision,omitempty"`
	Rules            []string          `json:"rules,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	Duration         time.Duration     `json:"duration_ns"`
}

// OutputText joins the attempt output chunks in arrival order.
func (r AttemptRecord) OutputText() string {
	var b strings.Builder
	for _, c := range r.Output {
		b.WriteString(c.Text)
		if !strings.HasSuffix(c.Text, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// FailureInfo explains why a session did not succeed.
type FailureInfo struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session is the complete result of one bounded retry loop.
type Session struct {
	ID              string          `json:"id"`
	Status          Status          `json:"status"`
	MaxRetries      int             `json:"max_retries"`
	ImageTag        string          `json:"image_tag"`
	Attempts        []AttemptRecord `json:"attempts"`
	FinalDefinition string          `json:"final_definition"`
	Message         string          `json:"message"`
	Failure         *FailureInfo    `json:"failure,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at,omitempty"`
}

// LastAttempt returns the most recent attempt, if any.
func (s *Session) LastAttempt() (AttemptRecord, bool) {
	if s == nil || len(s.Attempts) == 0 {
		return AttemptRecord{}, false
	}
	return s.Attempts[len(s.Attempts)-1], true
}
