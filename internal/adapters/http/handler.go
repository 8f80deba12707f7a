package http

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/melih/lighthouse-autobuild/internal/adapters/intake"
	"github.com/melih/lighthouse-autobuild/internal/core/dockerfile"
	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	"github.com/melih/lighthouse-autobuild/internal/core/fix"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
	"github.com/melih/lighthouse-autobuild/internal/core/session"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
	"github.com/melih/lighthouse-autobuild/internal/logfields"
)

// MaxRequestRetries caps the max_retries a caller may ask for.
const MaxRequestRetries = 10

// Runner executes one build session to completion.
type Runner interface {
	Run(ctx context.Context, req session.Request) *domain.Session
}

// BuildHandlerDeps contains the collaborators of a BuildHandler. Prober,
// Source and Generator are optional.
type BuildHandlerDeps struct {
	Runner            Runner
	Prober            ports.Prober
	Source            ports.ProjectSource
	Generator         ports.DefinitionGenerator
	Store             *SessionStore
	Limits            intake.Limits
	MaxConcurrent     int
	SessionTimeout    time.Duration
	DefaultMaxRetries int
	ProbeTimeout      time.Duration
	Logger            *slog.Logger
}

// BuildHandler serves the build session API. Sessions run synchronously in
// the request goroutine; a bounded slot pool limits how many run at once.
type BuildHandler struct {
	runner            Runner
	prober            ports.Prober
	source            ports.ProjectSource
	generator         ports.DefinitionGenerator
	store             *SessionStore
	limits            intake.Limits
	slots             chan struct{}
	sessionTimeout    time.Duration
	defaultMaxRetries int
	probeTimeout      time.Duration
	logger            *slog.Logger

	newID func() string
	now   func() time.Time
}

// NewBuildHandler creates a handler from its dependencies.
func NewBuildHandler(deps BuildHandlerDeps) *BuildHandler {
	h := &BuildHandler{
		runner:            deps.Runner,
		prober:            deps.Prober,
		source:            deps.Source,
		generator:         deps.Generator,
		store:             deps.Store,
		limits:            deps.Limits,
		sessionTimeout:    deps.SessionTimeout,
		defaultMaxRetries: deps.DefaultMaxRetries,
		probeTimeout:      deps.ProbeTimeout,
		logger:            deps.Logger,
		newID:             uuid.NewString,
		now:               time.Now,
	}
	n := deps.MaxConcurrent
	if n < 1 {
		n = 1
	}
	h.slots = make(chan struct{}, n)
	if h.store == nil {
		h.store = NewSessionStore(100)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.probeTimeout <= 0 {
		h.probeTimeout = 15 * time.Second
	}
	h.logger = h.logger.With(logfields.Component("http"))
	return h
}

// FilePayload is one project file in a JSON request.
type FilePayload struct {
	Path     string          `json:"path"`
	Content  string          `json:"content"`
	Encoding string          `json:"encoding"` // "base64" or empty for plain text
	Kind     domain.FileKind `json:"kind"`
}

// CreateBuildRequest is the body of POST /api/v1/builds.
type CreateBuildRequest struct {
	Files       []FilePayload `json:"files"`
	Definition  string        `json:"definition"`
	ImageTag    string        `json:"image_tag"`
	MaxRetries  int           `json:"max_retries"`
	Generate    bool          `json:"generate"`
	Instruction string        `json:"instruction"`
}

// GitHubBuildRequest is the body of POST /api/v1/builds/github.
type GitHubBuildRequest struct {
	RepoURL     string `json:"repo_url"`
	Ref         string `json:"ref"`
	Definition  string `json:"definition"`
	ImageTag    string `json:"image_tag"`
	MaxRetries  int    `json:"max_retries"`
	Generate    bool   `json:"generate"`
	Instruction string `json:"instruction"`
}

// GenerateRequest is the body of POST /api/v1/definitions/generate. Either
// Files or RepoURL names the project.
type GenerateRequest struct {
	Files       []FilePayload `json:"files"`
	RepoURL     string        `json:"repo_url"`
	Ref         string        `json:"ref"`
	Instruction string        `json:"instruction"`
}

// buildOptions are the per-request knobs shared by every build endpoint.
type buildOptions struct {
	definition  string
	imageTag    string
	maxRetries  int
	generate    bool
	instruction string
}

func (o buildOptions) validate() error {
	if o.maxRetries < 0 || o.maxRetries > MaxRequestRetries {
		return berrors.ValidationFailed("max_retries", fmt.Sprintf("must be between 0 and %d", MaxRequestRetries))
	}
	return nil
}

// CreateBuild runs a session over an inline JSON project.
func (h *BuildHandler) CreateBuild(c *fiber.Ctx) error {
	var req CreateBuildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	files, err := decodeFiles(req.Files)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(errorBody(err))
	}
	return h.runBuild(c, files, buildOptions{
		definition:  req.Definition,
		imageTag:    req.ImageTag,
		maxRetries:  req.MaxRetries,
		generate:    req.Generate,
		instruction: req.Instruction,
	})
}

// UploadBuild runs a session over a multipart upload. File parts are named
// "files"; an optional "paths" value per part carries its relative path,
// since multipart file names lose their directories.
func (h *BuildHandler) UploadBuild(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid multipart form",
		})
	}
	parts := form.File["files"]
	names := form.Value["paths"]
	if len(names) != 0 && len(names) != len(parts) {
		err := berrors.ValidationFailed("paths", "must have one entry per file part")
		return c.Status(errorStatus(err)).JSON(errorBody(err))
	}

	files := make([]domain.ProjectFile, 0, len(parts))
	for i, fh := range parts {
		name := fh.Filename
		if len(names) != 0 {
			name = names[i]
		}
		f, err := fh.Open()
		if err != nil {
			ierr := berrors.IntakeFailed("upload", err)
			return c.Status(errorStatus(ierr)).JSON(errorBody(ierr))
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			ierr := berrors.IntakeFailed("upload", err)
			return c.Status(errorStatus(ierr)).JSON(errorBody(ierr))
		}
		files = append(files, domain.ProjectFile{Path: name, Content: content, Kind: domain.KindFile})
	}

	retries, err := formInt(form.Value["max_retries"])
	if err != nil {
		return c.Status(errorStatus(err)).JSON(errorBody(err))
	}
	return h.runBuild(c, files, buildOptions{
		definition:  firstValue(form.Value["definition"]),
		imageTag:    firstValue(form.Value["image_tag"]),
		maxRetries:  retries,
		generate:    formBool(form.Value["generate"]),
		instruction: firstValue(form.Value["instruction"]),
	})
}

// GitHubBuild clones a repository and runs a session over its working tree.
// Without a definition the repository's own Dockerfile is the draft.
func (h *BuildHandler) GitHubBuild(c *fiber.Ctx) error {
	var req GitHubBuildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	files, err := h.fetch(c.UserContext(), req.RepoURL, req.Ref)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(errorBody(err))
	}
	return h.runBuild(c, files, buildOptions{
		definition:  req.Definition,
		imageTag:    req.ImageTag,
		maxRetries:  req.MaxRetries,
		generate:    req.Generate,
		instruction: req.Instruction,
	})
}

// GenerateDefinition asks the generator for an initial definition without
// running a build.
func (h *BuildHandler) GenerateDefinition(c *fiber.Ctx) error {
	if h.generator == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "No definition generator is configured",
		})
	}
	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	var files []domain.ProjectFile
	var err error
	if strings.TrimSpace(req.RepoURL) != "" {
		files, err = h.fetch(c.UserContext(), req.RepoURL, req.Ref)
	} else {
		files, err = decodeFiles(req.Files)
		if err == nil {
			files, err = h.limits.Apply(files)
		}
	}
	if err != nil {
		return c.Status(errorStatus(err)).JSON(errorBody(err))
	}

	def, err := h.generate(c.UserContext(), files, req.Instruction)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(errorBody(err))
	}
	return c.JSON(fiber.Map{
		"definition": def,
		"digest":     dockerfile.Digest(def),
	})
}

// GetBuild returns a stored session, running or finished.
func (h *BuildHandler) GetBuild(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}
	sess, ok := h.store.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.JSON(sess)
}

// ListBuilds returns summaries of the stored sessions, newest first.
func (h *BuildHandler) ListBuilds(c *fiber.Ctx) error {
	return c.JSON(h.store.List())
}

// Health probes the container build tool.
func (h *BuildHandler) Health(c *fiber.Ctx) error {
	if h.prober == nil {
		return c.JSON(fiber.Map{"status": "ok"})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), h.probeTimeout)
	defer cancel()
	if err := h.prober.Probe(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *BuildHandler) runBuild(c *fiber.Ctx, files []domain.ProjectFile, opts buildOptions) error {
	if err := opts.validate(); err != nil {
		return c.Status(errorStatus(err)).JSON(errorBody(err))
	}
	files, err := h.limits.Apply(files)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(errorBody(err))
	}

	if !h.acquire() {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many concurrent build sessions",
		})
	}
	defer h.release()

	ctx := c.UserContext()
	if h.sessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sessionTimeout)
		defer cancel()
	}

	def, err := h.resolveDefinition(ctx, files, opts)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(errorBody(err))
	}

	id := h.newID()
	retries := opts.maxRetries
	if retries == 0 {
		retries = h.defaultMaxRetries
	}
	h.store.Begin(id, opts.imageTag, retries, h.now())
	h.logger.Info("build session accepted", logfields.SessionID(id), slog.Int("files", len(files)))

	sess := h.runner.Run(ctx, session.Request{
		SessionID:  id,
		Files:      files,
		Definition: def,
		ImageTag:   opts.imageTag,
		MaxRetries: opts.maxRetries,
		OnAttempt: func(rec domain.AttemptRecord) {
			h.store.AppendAttempt(id, rec)
		},
	})
	if sess == nil {
		sess = h.abandoned(id)
	}
	h.store.Put(sess)
	return c.Status(sessionStatus(sess)).JSON(sess)
}

// abandoned closes out a session whose runner returned no result, keeping
// the attempts recorded so far.
func (h *BuildHandler) abandoned(id string) *domain.Session {
	sess, ok := h.store.Get(id)
	if !ok {
		sess = &domain.Session{ID: id, Attempts: []domain.AttemptRecord{}}
	}
	const msg = "build runner returned no session"
	h.logger.Error(msg, logfields.SessionID(id))
	sess.Status = domain.StatusUnrecoverable
	sess.Failure = &domain.FailureInfo{Category: string(berrors.CategoryInternal), Message: msg}
	sess.Message = "build unrecoverable: " + msg
	sess.FinishedAt = h.now()
	return sess
}

// resolveDefinition picks the draft definition: the caller's, else the
// project's own Dockerfile, else a generated one. generate forces generation.
func (h *BuildHandler) resolveDefinition(ctx context.Context, files []domain.ProjectFile, opts buildOptions) (string, error) {
	def := dockerfile.StripFences(opts.definition)
	if !opts.generate && strings.TrimSpace(def) == "" {
		def = projectDefinition(files)
	}
	if !opts.generate && strings.TrimSpace(def) != "" {
		return def, nil
	}
	if h.generator == nil {
		return "", berrors.ValidationFailed("definition", "required when no generator is configured")
	}
	return h.generate(ctx, files, opts.instruction)
}

func (h *BuildHandler) generate(ctx context.Context, files []domain.ProjectFile, instruction string) (string, error) {
	out, err := h.generator.Generate(ctx, fix.InitialPrompt(domain.Manifest(files), instruction))
	if err != nil {
		if be, ok := berrors.As(err); ok {
			return "", be
		}
		return "", berrors.GenerationFailed("request", err)
	}
	def := dockerfile.StripFences(out)
	if err := dockerfile.Validate(def); err != nil {
		return "", berrors.GenerationFailed("malformed", err)
	}
	return def, nil
}

func (h *BuildHandler) fetch(ctx context.Context, rawURL, ref string) ([]domain.ProjectFile, error) {
	if h.source == nil {
		return nil, berrors.ValidationFailed("repo_url", "repository intake is not configured")
	}
	url, err := intake.NormalizeRepoURL(rawURL)
	if err != nil {
		return nil, err
	}
	return h.source.Fetch(ctx, ports.RepoRef{URL: url, Ref: strings.TrimSpace(ref)})
}

func (h *BuildHandler) acquire() bool {
	select {
	case h.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (h *BuildHandler) release() { <-h.slots }

func projectDefinition(files []domain.ProjectFile) string {
	for _, f := range files {
		if f.Path == ports.DefinitionFile && !f.IsDir() {
			return dockerfile.StripFences(string(f.Content))
		}
	}
	return ""
}

func decodeFiles(in []FilePayload) ([]domain.ProjectFile, error) {
	out := make([]domain.ProjectFile, 0, len(in))
	for _, p := range in {
		f := domain.ProjectFile{Path: p.Path, Kind: p.Kind}
		if f.Kind == "" {
			f.Kind = domain.KindFile
		}
		switch strings.ToLower(p.Encoding) {
		case "":
			f.Content = []byte(p.Content)
		case "base64":
			b, err := base64.StdEncoding.DecodeString(p.Content)
			if err != nil {
				return nil, berrors.ValidationFailed("files", fmt.Sprintf("file %q: invalid base64 content", p.Path))
			}
			f.Content = b
		default:
			return nil, berrors.ValidationFailed("files", fmt.Sprintf("file %q: unknown encoding %q", p.Path, p.Encoding))
		}
		out = append(out, f)
	}
	return out, nil
}

func firstValue(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func formInt(vs []string) (int, error) {
	s := strings.TrimSpace(firstValue(vs))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, berrors.ValidationFailed("max_retries", "must be an integer")
	}
	return n, nil
}

func formBool(vs []string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(firstValue(vs)))
	return b
}
