// Package session drives the bounded build-monitor retry loop.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/melih/lighthouse-autobuild/internal/core/classify"
	"github.com/melih/lighthouse-autobuild/internal/core/dockerfile"
	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	"github.com/melih/lighthouse-autobuild/internal/core/fix"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
	"github.com/melih/lighthouse-autobuild/internal/logfields"
	"github.com/melih/lighthouse-autobuild/internal/metrics"
	"github.com/melih/lighthouse-autobuild/internal/retry"
)

// Decision labels recorded on attempts in addition to fix.Kind names.
const (
	DecisionRetry     = "retry"
	DecisionExhausted = "exhausted"
)

// DefaultImageRepository names images when the request carries no tag.
const DefaultImageRepository = "autobuild"

// ControllerDeps contains the collaborators of a Controller. Generator,
// Metrics and Logger are optional.
type ControllerDeps struct {
	Prober          ports.Prober
	Invoker         ports.BuildInvoker
	Stager          ports.Stager
	Generator       ports.DefinitionGenerator
	Metrics         metrics.Recorder
	Logger          *slog.Logger
	Policy          retry.Policy
	ImageRepository string
}

// Controller runs build sessions. It holds only injected collaborators and
// is safe for concurrent use; every Run owns its own session value.
type Controller struct {
	prober    ports.Prober
	invoker   ports.BuildInvoker
	stager    ports.Stager
	generator ports.DefinitionGenerator
	metrics   metrics.Recorder
	logger    *slog.Logger
	policy    retry.Policy
	imageRepo string

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	newID func() string
}

// NewController creates a controller from its dependencies.
func NewController(deps ControllerDeps) *Controller {
	c := &Controller{
		prober:    deps.Prober,
		invoker:   deps.Invoker,
		stager:    deps.Stager,
		generator: deps.Generator,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		policy:    deps.Policy,
		imageRepo: deps.ImageRepository,
		now:       time.Now,
		sleep:     sleepContext,
		newID:     uuid.NewString,
	}
	if c.metrics == nil {
		c.metrics = metrics.NoopRecorder{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.imageRepo == "" {
		c.imageRepo = DefaultImageRepository
	}
	c.logger = c.logger.With(logfields.Component("session"))
	if err := c.policy.Validate(); err != nil {
		c.logger.Warn("invalid retry policy, using defaults", logfields.Error(err))
		c.policy = retry.DefaultPolicy()
	}
	return c
}

// Request is the input of one build session.
type Request struct {
	SessionID  string // generated when empty
	Files      []domain.ProjectFile
	Definition string
	ImageTag   string // generated when empty
	MaxRetries int    // policy default when <= 0

	// OnChunk receives build output as it streams. OnAttempt receives each
	// attempt record once it is final. Both are called from the Run goroutine.
	OnChunk   func(attempt int, chunk domain.LogChunk)
	OnAttempt func(domain.AttemptRecord)
}

// Run executes one bounded build session and always returns a terminal
// session, never an error: failures are reported through Status, Failure and
// Message.
func (c *Controller) Run(ctx context.Context, req Request) (sess *domain.Session) {
	r := c.newRun(req)
	c.metrics.AddActiveSessions(1)
	r.log.Info("build session started", logfields.MaxRetries(r.sess.MaxRetries), logfields.ImageTag(r.sess.ImageTag))

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("build session panicked", slog.Any("panic", p))
			r.state = StateUnrecoverable
			r.finish(domain.StatusUnrecoverable, berrors.CategoryInternal, fmt.Sprintf("internal error: %v", p))
		}
		sess = r.sess
		c.metrics.AddActiveSessions(-1)
		c.metrics.IncSessionOutcome(string(r.sess.Status))
		c.metrics.ObserveSessionDuration(r.sess.FinishedAt.Sub(r.sess.StartedAt))
		r.log.Info("build session finished",
			logfields.Status(string(r.sess.Status)),
			slog.Int("attempts", len(r.sess.Attempts)),
			logfields.Duration(r.sess.FinishedAt.Sub(r.sess.StartedAt)))
	}()

	r.execute(ctx)
	return r.sess
}

func (c *Controller) newRun(req Request) *run {
	id := req.SessionID
	if id == "" {
		id = c.newID()
	}
	tag := req.ImageTag
	if tag == "" {
		tag = c.imageRepo + ":" + strings.ToLower(ulid.Make().String())
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = c.policy.MaxAttempts
	}
	current := dockerfile.StripFences(req.Definition)
	return &run{
		c:        c,
		req:      req,
		log:      c.logger.With(logfields.SessionID(id)),
		state:    StateIdle,
		current:  current,
		manifest: domain.Manifest(req.Files),
		sess: &domain.Session{
			ID:              id,
			Status:          domain.StatusRunning,
			MaxRetries:      maxRetries,
			ImageTag:        tag,
			Attempts:        []domain.AttemptRecord{},
			FinalDefinition: current,
			StartedAt:       c.now(),
		},
	}
}

// run is the state of a single session. It is confined to one goroutine.
type run struct {
	c        *Controller
	req      Request
	log      *slog.Logger
	state    State
	sess     *domain.Session
	current  string
	manifest []string
}

func (r *run) to(next State) {
	if !CanTransition(r.state, next) {
		panic(fmt.Sprintf("illegal state transition %s -> %s", r.state, next))
	}
	r.log.Debug("state transition", slog.String("from", r.state.String()), logfields.State(next.String()))
	r.state = next
}

func (r *run) execute(ctx context.Context) {
	r.to(StateProbing)
	if err := r.c.prober.Probe(ctx); err != nil {
		r.c.metrics.IncProbeFailure()
		r.to(StateUnrecoverable)
		if ctx.Err() != nil {
			r.finish(domain.StatusUnrecoverable, berrors.CategoryCancelled, "build session cancelled before the first attempt")
			return
		}
		r.log.Error("build tool unavailable", logfields.Error(err))
		r.finish(domain.StatusUnrecoverable, berrors.CategoryDependency, "container build tool unavailable: "+err.Error())
		return
	}

	r.to(StateAttempting)
	for attempt := 1; ; attempt++ {
		rec, err := r.attempt(ctx, attempt)
		if err != nil {
			if rec != nil {
				r.record(*rec)
			}
			r.to(StateUnrecoverable)
			r.finishErr(err)
			return
		}
		if rec.Success {
			r.record(*rec)
			r.to(StateSucceeded)
			r.finish(domain.StatusSucceeded, "", "")
			return
		}

		r.to(StateClassifying)
		rec.Errors = classify.Classify(rec.OutputText())
		for _, e := range rec.Errors {
			r.c.metrics.IncClassifiedError(string(e.Category))
			r.log.Warn("build error classified",
				logfields.Attempt(attempt),
				logfields.Category(string(e.Category)),
				logfields.Detector(e.Detector),
				slog.String("message", e.Message))
		}

		r.to(StateDeciding)
		v, err := r.decide(ctx, rec)
		r.record(*rec)
		if err != nil {
			r.to(StateUnrecoverable)
			r.finishErr(err)
			return
		}
		if r.state == StateExhausted {
			r.finish(domain.StatusExhausted, exhaustedCategory(rec), v.reason)
			return
		}

		r.to(StateRewriting)
		if err := r.c.sleep(ctx, v.wait); err != nil {
			r.to(StateUnrecoverable)
			r.finishErr(berrors.Cancelled(err))
			return
		}
		r.current = v.next
		r.to(StateAttempting)
	}
}

// attempt stages the current definition and runs one build. The returned
// record is nil when no build was started.
func (r *run) attempt(ctx context.Context, n int) (*domain.AttemptRecord, error) {
	log := r.log.With(logfields.Attempt(n))
	if err := ctx.Err(); err != nil {
		return nil, berrors.Cancelled(err)
	}

	rec := &domain.AttemptRecord{
		Number:           n,
		Definition:       r.current,
		DefinitionDigest: dockerfile.Digest(r.current),
		Output:           []domain.LogChunk{},
		StartedAt:        r.c.now(),
	}

	dir, err := r.c.stager.Stage(r.req.Files, r.current)
	if err != nil {
		if _, ok := berrors.As(err); !ok {
			err = berrors.StagingFailed("stage", err)
		}
		return nil, err
	}
	defer func() {
		if cerr := r.c.stager.Cleanup(dir); cerr != nil {
			log.Warn("failed to clean up staging directory", logfields.Path(dir), logfields.Error(cerr))
		}
	}()

	log.Info("build attempt started", logfields.Path(dir), slog.String("digest", rec.DefinitionDigest))
	sink := func(chunk domain.LogChunk) {
		rec.Output = append(rec.Output, chunk)
		if r.req.OnChunk != nil {
			r.req.OnChunk(n, chunk)
		}
	}
	res, err := r.c.invoker.Invoke(ctx, ports.BuildRequest{
		DefinitionPath: filepath.Join(dir, ports.DefinitionFile),
		ContextPath:    dir,
		ImageTag:       r.sess.ImageTag,
	}, sink)
	rec.Duration = r.c.now().Sub(rec.StartedAt)

	if err != nil {
		if ctx.Err() != nil || berrors.IsCategory(err, berrors.CategoryCancelled) {
			r.c.metrics.ObserveAttempt(metrics.AttemptCancelled, rec.Duration)
			if _, ok := berrors.As(err); !ok {
				err = berrors.Cancelled(err)
			}
			return rec, err
		}
		if _, ok := berrors.As(err); !ok {
			err = berrors.SpawnFailed("build", err)
		}
		return nil, err
	}

	rec.Success = res.Success
	rec.ExitCode = res.ExitCode
	result := metrics.AttemptFailed
	if rec.Success {
		result = metrics.AttemptSucceeded
	}
	r.c.metrics.ObserveAttempt(result, rec.Duration)
	log.Info("build attempt finished",
		slog.Bool("success", rec.Success),
		logfields.ExitCode(rec.ExitCode),
		logfields.Duration(rec.Duration))
	return rec, nil
}

// verdict is the outcome of the Deciding state.
type verdict struct {
	next   string        // definition for the next attempt
	wait   time.Duration // delay before the next attempt
	reason string        // why the session is exhausted
}

// decide fills in the decision of a failed attempt. It moves the machine to
// Exhausted when the session ends without a further attempt; a non-nil error
// ends the session as unrecoverable.
func (r *run) decide(ctx context.Context, rec *domain.AttemptRecord) (verdict, error) {
	maxRetries := r.sess.MaxRetries
	log := r.log.With(logfields.Attempt(rec.Number))

	if rec.Number >= maxRetries {
		rec.Decision = DecisionExhausted
		r.c.metrics.IncDecision(DecisionExhausted)
		r.to(StateExhausted)
		return verdict{reason: fmt.Sprintf("retry limit of %d attempts reached", maxRetries)}, nil
	}

	d := fix.Select(rec.Errors, r.current, rec.Number, maxRetries, r.manifest)
	rec.Decision = d.Kind.String()
	log.Info("fix selected", logfields.Decision(rec.Decision), slog.String("reason", d.Reason))

	switch d.Kind {
	case fix.KindRewrite:
		r.c.metrics.IncDecision(rec.Decision)
		rec.Rules = d.Rules
		return verdict{next: d.Definition}, nil

	case fix.KindDelegate:
		if r.c.generator == nil {
			rec.Decision = fix.KindGiveUp.String()
			r.c.metrics.IncDecision(rec.Decision)
			r.to(StateExhausted)
			return verdict{reason: "no local fix applies and no definition generator is configured"}, nil
		}
		r.c.metrics.IncDecision(rec.Decision)
		def, err := r.generate(ctx, d.Prompt)
		if err != nil {
			log.Error("definition generation failed", logfields.Error(err))
			return verdict{}, err
		}
		return verdict{next: def}, nil

	default:
		if len(rec.Errors) == 0 {
			// Unrecognised failure: treat as transient and rebuild unchanged.
			rec.Decision = DecisionRetry
			r.c.metrics.IncDecision(rec.Decision)
			return verdict{next: r.current, wait: r.c.policy.Delay(rec.Number)}, nil
		}
		r.c.metrics.IncDecision(rec.Decision)
		r.to(StateExhausted)
		return verdict{reason: d.Reason}, nil
	}
}

func (r *run) generate(ctx context.Context, prompt fix.PromptContext) (string, error) {
	out, err := r.c.generator.Generate(ctx, prompt.Render())
	if err != nil {
		if ctx.Err() != nil {
			return "", berrors.Cancelled(err)
		}
		return "", berrors.GenerationFailed("request", err)
	}
	def := dockerfile.StripFences(out)
	if err := dockerfile.Validate(def); err != nil {
		return "", berrors.GenerationFailed("malformed definition", err)
	}
	return def, nil
}

func (r *run) record(rec domain.AttemptRecord) {
	r.sess.Attempts = append(r.sess.Attempts, rec)
	if r.req.OnAttempt != nil {
		r.req.OnAttempt(rec)
	}
}

func (r *run) finishErr(err error) {
	cat := berrors.GetCategory(err)
	r.log.Error("build session failed", logfields.Category(string(cat)), logfields.Error(err))
	r.finish(domain.StatusUnrecoverable, cat, err.Error())
}

func (r *run) finish(status domain.Status, cat berrors.Category, reason string) {
	r.sess.Status = status
	r.sess.FinalDefinition = r.current
	r.sess.FinishedAt = r.c.now()
	if status != domain.StatusSucceeded {
		r.sess.Failure = &domain.FailureInfo{Category: string(cat), Message: reason}
	}
	r.sess.Message = summarize(r.sess, reason)
}

// exhaustedCategory reports the first classified category of the last
// attempt, or the build-failure category when nothing was recognised.
func exhaustedCategory(rec *domain.AttemptRecord) berrors.Category {
	if len(rec.Errors) > 0 {
		return berrors.Category(rec.Errors[0].Category)
	}
	return berrors.CategoryBuildFailed
}

// summarize builds the human-readable outcome of a session.
func summarize(s *domain.Session, reason string) string {
	var b strings.Builder
	switch s.Status {
	case domain.StatusSucceeded:
		fmt.Fprintf(&b, "build succeeded on attempt %d of %d", len(s.Attempts), s.MaxRetries)
	default:
		fmt.Fprintf(&b, "build %s after %d attempt(s)", s.Status, len(s.Attempts))
		if reason != "" {
			b.WriteString(": ")
			b.WriteString(reason)
		}
	}
	for _, a := range s.Attempts {
		if a.Success {
			continue
		}
		fmt.Fprintf(&b, "\nattempt %d: ", a.Number)
		if len(a.Errors) == 0 {
			fmt.Fprintf(&b, "exit code %d, no recognised errors", a.ExitCode)
		} else {
			msgs := make([]string, len(a.Errors))
			for i, e := range a.Errors {
				msgs[i] = e.String()
			}
			b.WriteString(strings.Join(msgs, "; "))
		}
		if a.Decision != "" {
			fmt.Fprintf(&b, " -> %s", a.Decision)
			if len(a.Rules) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(a.Rules, ", "))
			}
		}
	}
	return b.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
