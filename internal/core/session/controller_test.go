package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-autobuild/internal/core/classify"
	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	"github.com/melih/lighthouse-autobuild/internal/core/fix"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
	"github.com/melih/lighthouse-autobuild/internal/retry"
)

type fakeProber struct{ err error }

func (p fakeProber) Probe(context.Context) error { return p.err }

// step scripts one Invoke call.
type step struct {
	output string
	exit   int
	err    error
	before func() // runs before returning, e.g. to cancel the context
	panic  bool
}

type scriptedInvoker struct {
	steps []step
	calls []ports.BuildRequest
}

func (s *scriptedInvoker) Invoke(_ context.Context, req ports.BuildRequest, sink ports.LogSink) (ports.BuildResult, error) {
	i := len(s.calls)
	s.calls = append(s.calls, req)
	if i >= len(s.steps) {
		return ports.BuildResult{}, fmt.Errorf("unexpected invoke #%d", i+1)
	}
	st := s.steps[i]
	if st.panic {
		panic("invoker exploded")
	}
	for _, line := range strings.Split(st.output, "\n") {
		if line != "" {
			sink(domain.LogChunk{Stream: "stderr", Text: line})
		}
	}
	if st.before != nil {
		st.before()
	}
	if st.err != nil {
		return ports.BuildResult{}, st.err
	}
	return ports.BuildResult{Success: st.exit == 0, ExitCode: st.exit}, nil
}

type fakeStager struct {
	err        error
	cleanupErr error
	staged     []string
	cleaned    []string
}

func (s *fakeStager) Stage(_ []domain.ProjectFile, def string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.staged = append(s.staged, def)
	return fmt.Sprintf("/tmp/autobuild-%d", len(s.staged)), nil
}

func (s *fakeStager) Cleanup(dir string) error {
	s.cleaned = append(s.cleaned, dir)
	return s.cleanupErr
}

type fakeGenerator struct {
	out     string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.out, g.err
}

type harness struct {
	ctrl    *Controller
	inv     *scriptedInvoker
	stager  *fakeStager
	sleeps  []time.Duration
	prober  fakeProber
	gen     *fakeGenerator
	nowTick time.Time
}

func newHarness(t *testing.T, steps ...step) *harness {
	t.Helper()
	h := &harness{
		inv:     &scriptedInvoker{steps: steps},
		stager:  &fakeStager{},
		nowTick: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	return h
}

func (h *harness) build(gen ports.DefinitionGenerator) *Controller {
	c := NewController(ControllerDeps{
		Prober:    h.prober,
		Invoker:   h.inv,
		Stager:    h.stager,
		Generator: gen,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Policy:    retry.DefaultPolicy(),
	})
	c.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	c.now = func() time.Time {
		h.nowTick = h.nowTick.Add(time.Second)
		return h.nowTick
	}
	c.newID = func() string { return "session-1" }
	h.ctrl = c
	return c
}

const pythonDefinition = "FROM python:3.11-slim\nWORKDIR /app\nCOPY requirements.txt .\nRUN pip install -r requirements.txt\nCOPY . .\nCMD [\"python\", \"app.py\"]\n"

func decisions(s *domain.Session) []string {
	out := make([]string, len(s.Attempts))
	for i, a := range s.Attempts {
		out[i] = a.Decision
	}
	return out
}

func TestRunSucceedsOnFirstAttempt(t *testing.T) {
	h := newHarness(t, step{output: "#1 DONE"})
	s := h.build(nil).Run(context.Background(), Request{Definition: "```dockerfile\n" + pythonDefinition + "```"})

	require.Equal(t, domain.StatusSucceeded, s.Status)
	require.Len(t, s.Attempts, 1)
	require.True(t, s.Attempts[0].Success)
	require.Equal(t, pythonDefinition, s.FinalDefinition)
	require.Equal(t, []string{pythonDefinition}, h.stager.staged)
	require.Equal(t, h.stager.staged[0], s.Attempts[0].Definition)
	require.Nil(t, s.Failure)
	require.Equal(t, "session-1", s.ID)
	require.True(t, strings.HasPrefix(s.ImageTag, DefaultImageRepository+":"))
	require.Equal(t, strings.ToLower(s.ImageTag), s.ImageTag)
	require.Contains(t, s.Message, "succeeded on attempt 1 of 3")
	require.Equal(t, "/tmp/autobuild-1/Dockerfile", h.inv.calls[0].DefinitionPath)
	require.Equal(t, "/tmp/autobuild-1", h.inv.calls[0].ContextPath)
	require.Equal(t, s.ImageTag, h.inv.calls[0].ImageTag)
	require.True(t, s.FinishedAt.After(s.StartedAt))
}

func TestRunExhaustsOnUnclassifiableFailures(t *testing.T) {
	fail := step{output: "make: *** [all] Error 2", exit: 1}
	h := newHarness(t, fail, fail, fail)
	s := h.build(nil).Run(context.Background(), Request{Definition: pythonDefinition, MaxRetries: 3})

	require.Equal(t, domain.StatusExhausted, s.Status)
	require.Len(t, s.Attempts, 3)
	require.Equal(t, []string{DecisionRetry, DecisionRetry, DecisionExhausted}, decisions(s))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps)
	require.Equal(t, string(berrors.CategoryBuildFailed), s.Failure.Category)
	require.Contains(t, s.Message, "exhausted after 3 attempt(s)")
	require.Contains(t, s.Message, "attempt 2: exit code 1, no recognised errors")
	for _, a := range s.Attempts {
		require.Empty(t, a.Errors)
		require.Equal(t, pythonDefinition, a.Definition)
	}
}

func TestRunRequirementsRewriteThenSuccess(t *testing.T) {
	h := newHarness(t,
		step{output: `ERROR: failed to solve: failed to compute cache key: "/requirements.txt": not found`, exit: 1},
		step{output: "#9 DONE 0.4s"},
	)
	s := h.build(nil).Run(context.Background(), Request{Definition: pythonDefinition})

	require.Equal(t, domain.StatusSucceeded, s.Status)
	require.Len(t, s.Attempts, 2)
	require.Contains(t, s.FinalDefinition, classify.GenerateRequirementsDirective)
	require.NotContains(t, s.FinalDefinition, "COPY requirements.txt")

	first := s.Attempts[0]
	require.False(t, first.Success)
	require.Equal(t, 1, first.ExitCode)
	require.Equal(t, fix.KindRewrite.String(), first.Decision)
	require.Equal(t, []string{fix.RuleGenerateRequirements}, first.Rules)
	require.Equal(t, domain.CategoryMissingFile, first.Errors[0].Category)
	require.NotEqual(t, first.DefinitionDigest, s.Attempts[1].DefinitionDigest)

	require.Len(t, h.stager.staged, 2)
	require.Equal(t, s.FinalDefinition, h.stager.staged[1])
	require.Empty(t, h.sleeps)
}

func TestRunProbeFailureConsumesNoAttempt(t *testing.T) {
	h := newHarness(t)
	h.prober = fakeProber{err: berrors.ToolUnavailable("info", errors.New("daemon not running"))}
	s := h.build(nil).Run(context.Background(), Request{Definition: pythonDefinition})

	require.Equal(t, domain.StatusUnrecoverable, s.Status)
	require.Empty(t, s.Attempts)
	require.Empty(t, h.inv.calls)
	require.Empty(t, h.stager.staged)
	require.Equal(t, string(berrors.CategoryDependency), s.Failure.Category)
	require.Contains(t, s.Message, "daemon not running")
}

func TestRunDelegatesToGenerator(t *testing.T) {
	h := newHarness(t,
		step{output: "/bin/sh: 1: ./start.sh: Permission denied", exit: 126},
		step{},
	)
	gen := &fakeGenerator{out: "Here is the fix:\n```dockerfile\nFROM alpine:3.20\nCOPY . .\nCMD [\"sh\", \"start.sh\"]\n```"}
	s := h.build(gen).Run(context.Background(), Request{
		Definition: "FROM alpine:3.20\nCOPY . .\nCMD [\"./start.sh\"]\n",
		Files:      []domain.ProjectFile{{Path: "start.sh", Content: []byte("echo hi")}},
	})

	require.Equal(t, domain.StatusSucceeded, s.Status)
	require.Len(t, s.Attempts, 2)
	require.Equal(t, fix.KindDelegate.String(), s.Attempts[0].Decision)
	require.Equal(t, "FROM alpine:3.20\nCOPY . .\nCMD [\"sh\", \"start.sh\"]\n", s.FinalDefinition)

	require.Len(t, gen.prompts, 1)
	require.Contains(t, gen.prompts[0], "permission_error")
	require.Contains(t, gen.prompts[0], "- start.sh")
	require.Contains(t, gen.prompts[0], "attempt 1 of 3")
}

func TestRunGeneratorFailuresAreUnrecoverable(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"request error", &fakeGenerator{err: errors.New("429 too many requests")}},
		{"malformed output", &fakeGenerator{out: "I cannot help with that."}},
		{"empty output", &fakeGenerator{out: "```\n```"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, step{output: "npm ERR! code EACCES", exit: 1})
			s := h.build(tt.gen).Run(context.Background(), Request{Definition: pythonDefinition})

			require.Equal(t, domain.StatusUnrecoverable, s.Status)
			require.Len(t, s.Attempts, 1)
			require.Equal(t, string(berrors.CategoryGeneration), s.Failure.Category)
			require.Equal(t, pythonDefinition, s.FinalDefinition)
			require.Len(t, h.inv.calls, 1)
		})
	}
}

func TestRunDelegateWithoutGeneratorExhausts(t *testing.T) {
	h := newHarness(t, step{output: "ERROR: dockerfile parse error on line 2: unknown instruction: RUNN", exit: 1})
	s := h.build(nil).Run(context.Background(), Request{Definition: "FROM alpine\nRUNN true\n"})

	require.Equal(t, domain.StatusExhausted, s.Status)
	require.Len(t, s.Attempts, 1)
	require.Equal(t, fix.KindGiveUp.String(), s.Attempts[0].Decision)
	require.Equal(t, string(domain.CategorySyntaxError), s.Failure.Category)
}

func TestRunCeilingSkipsFixSelection(t *testing.T) {
	mismatch := step{output: "RUN go build -o app .\nno Go files; found app.py", exit: 1}
	h := newHarness(t, mismatch)
	def := "FROM golang:1.21\nCOPY . .\nRUN go build -o app .\n"
	s := h.build(nil).Run(context.Background(), Request{Definition: def, MaxRetries: 1})

	require.Equal(t, domain.StatusExhausted, s.Status)
	require.Len(t, s.Attempts, 1)
	require.Equal(t, DecisionExhausted, s.Attempts[0].Decision)
	require.Equal(t, def, s.FinalDefinition)
	require.Equal(t, string(domain.CategoryLanguageMismatch), s.Failure.Category)
}

func TestRunStagingFailure(t *testing.T) {
	h := newHarness(t)
	h.stager.err = berrors.PathEscape("../etc/passwd")
	s := h.build(nil).Run(context.Background(), Request{Definition: pythonDefinition})

	require.Equal(t, domain.StatusUnrecoverable, s.Status)
	require.Empty(t, s.Attempts)
	require.Empty(t, h.inv.calls)
	require.Equal(t, string(berrors.CategoryStaging), s.Failure.Category)
}

func TestRunSpawnFailure(t *testing.T) {
	h := newHarness(t, step{err: errors.New("exec: \"docker\": executable file not found in $PATH")})
	s := h.build(nil).Run(context.Background(), Request{Definition: pythonDefinition})

	require.Equal(t, domain.StatusUnrecoverable, s.Status)
	require.Empty(t, s.Attempts)
	require.Equal(t, string(berrors.CategorySpawn), s.Failure.Category)
	require.Equal(t, []string{"/tmp/autobuild-1"}, h.stager.cleaned)
}

func TestRunCancellationKeepsPartialAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, step{
		output: "#5 [2/4] RUN pip install -r requirements.txt",
		before: cancel,
		err:    berrors.Cancelled(context.Canceled),
	})
	s := h.build(nil).Run(ctx, Request{Definition: pythonDefinition})

	require.Equal(t, domain.StatusUnrecoverable, s.Status)
	require.Equal(t, string(berrors.CategoryCancelled), s.Failure.Category)
	require.Len(t, s.Attempts, 1)
	require.False(t, s.Attempts[0].Success)
	require.Len(t, s.Attempts[0].Output, 1)
	require.Len(t, h.stager.cleaned, 1)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(t)
	s := h.build(nil).Run(ctx, Request{Definition: pythonDefinition})

	require.Equal(t, domain.StatusUnrecoverable, s.Status)
	require.Equal(t, string(berrors.CategoryCancelled), s.Failure.Category)
	require.Empty(t, s.Attempts)
}

func TestRunRecoversPanics(t *testing.T) {
	h := newHarness(t, step{panic: true})
	s := h.build(nil).Run(context.Background(), Request{Definition: pythonDefinition})

	require.NotNil(t, s)
	require.Equal(t, "session-1", s.ID)
	require.Equal(t, domain.StatusUnrecoverable, s.Status)
	require.Equal(t, string(berrors.CategoryInternal), s.Failure.Category)
	require.Contains(t, s.Message, "invoker exploded")
	require.False(t, s.FinishedAt.IsZero())
	require.Len(t, h.stager.cleaned, 1)
}

type panickingProber struct{}

func (panickingProber) Probe(context.Context) error { panic("probe exploded") }

func TestRunReturnsSessionWhenProbePanics(t *testing.T) {
	h := newHarness(t)
	c := h.build(nil)
	c.prober = panickingProber{}
	s := c.Run(context.Background(), Request{Definition: pythonDefinition})

	require.NotNil(t, s)
	require.Equal(t, domain.StatusUnrecoverable, s.Status)
	require.Equal(t, string(berrors.CategoryInternal), s.Failure.Category)
	require.Empty(t, s.Attempts)
	require.Empty(t, h.inv.calls)
}

func TestRunCleanupErrorsAreNotPropagated(t *testing.T) {
	h := newHarness(t, step{})
	h.stager.cleanupErr = errors.New("device busy")
	s := h.build(nil).Run(context.Background(), Request{Definition: pythonDefinition})
	require.Equal(t, domain.StatusSucceeded, s.Status)
	require.Equal(t, []string{"/tmp/autobuild-1"}, h.stager.cleaned)
}

func TestRunCallbacks(t *testing.T) {
	h := newHarness(t,
		step{output: "a\nb", exit: 1},
		step{output: "c"},
	)
	var chunks []string
	var records []int
	s := h.build(nil).Run(context.Background(), Request{
		Definition: pythonDefinition,
		SessionID:  "fixed",
		ImageTag:   "demo:latest",
		OnChunk: func(attempt int, c domain.LogChunk) {
			chunks = append(chunks, fmt.Sprintf("%d:%s", attempt, c.Text))
		},
		OnAttempt: func(r domain.AttemptRecord) { records = append(records, r.Number) },
	})
	require.Equal(t, "fixed", s.ID)
	require.Equal(t, "demo:latest", s.ImageTag)
	require.Equal(t, []string{"1:a", "1:b", "2:c"}, chunks)
	require.Equal(t, []int{1, 2}, records)
}

func TestRunAttemptBoundProperty(t *testing.T) {
	outputs := []string{
		"",
		"make: *** Error 1",
		`"/requirements.txt": not found`,
		"go build ./...\napp.py",
		"Permission denied",
		`"/package-lock.json": not found`,
	}
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 300; i++ {
		maxRetries := 1 + rng.IntN(5)
		steps := make([]step, maxRetries)
		for j := range steps {
			k := rng.IntN(len(outputs))
			steps[j] = step{output: outputs[k], exit: k}
		}
		h := newHarness(t, steps...)
		gen := &fakeGenerator{out: "FROM alpine\nRUN true\n"}
		s := h.build(gen).Run(context.Background(), Request{Definition: pythonDefinition, MaxRetries: maxRetries})

		require.True(t, s.Status.Terminal())
		require.LessOrEqual(t, len(s.Attempts), maxRetries)
		require.NotEmpty(t, s.Attempts)
		last := s.Attempts[len(s.Attempts)-1]
		require.Equal(t, last.Success, s.Status == domain.StatusSucceeded)
		if !last.Success && len(s.Attempts) == maxRetries {
			require.Equal(t, domain.StatusExhausted, s.Status)
		}
		for j, a := range s.Attempts {
			require.Equal(t, j+1, a.Number)
		}
	}
}

func TestNewControllerReplacesInvalidPolicy(t *testing.T) {
	deps := ControllerDeps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	c := NewController(deps)
	require.Equal(t, retry.DefaultPolicy(), c.policy)

	deps.Policy = retry.Policy{MaxAttempts: 5}
	c = NewController(deps)
	require.Equal(t, retry.DefaultPolicy(), c.policy)

	valid := retry.NewPolicy("exponential", 2*time.Second, time.Minute, 5)
	deps.Policy = valid
	c = NewController(deps)
	require.Equal(t, valid, c.policy)
}
