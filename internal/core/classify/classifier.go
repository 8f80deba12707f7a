// Package classify turns raw container build output into typed error records.
//
// Classification is pure and total: every detector runs against the whole
// output, in declaration order, and unrecognised output yields no records.
// Detectors are independent, so one root cause may be reported more than
// once; consumers must tolerate duplicates.
package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

// Detector names, in evaluation order.
const (
	DetectorQuotedPathNotFound = "quoted_path_not_found"
	DetectorGoModuleNotFound   = "go_module_not_found"
	DetectorLanguageMismatch   = "language_mismatch"
	DetectorRequirementsFile   = "requirements_not_found"
	DetectorLockfile           = "lockfile_not_found"
	DetectorPermission         = "permission_denied"
	DetectorDockerfileParse    = "dockerfile_parse"
	DetectorPackageResolution  = "package_resolution"
)

// Well-known file names the detectors and rewrite rules key on.
const (
	GoModFile        = "go.mod"
	RequirementsFile = "requirements.txt"
	NpmLockfile      = "package-lock.json"
	YarnLockfile     = "yarn.lock"
)

// IsLockfile reports whether name is one of the dependency lock manifests.
func IsLockfile(name string) bool {
	return name == NpmLockfile || name == YarnLockfile
}

type detector struct {
	name   string
	detect func(raw, lower string) []domain.ClassifiedError
}

var detectors = []detector{
	{DetectorQuotedPathNotFound, detectQuotedPath},
	{DetectorGoModuleNotFound, detectGoModule},
	{DetectorLanguageMismatch, detectLanguageMismatch},
	{DetectorRequirementsFile, detectRequirements},
	{DetectorLockfile, detectLockfile},
	{DetectorPermission, detectPermission},
	{DetectorDockerfileParse, detectDockerfileParse},
	{DetectorPackageResolution, detectPackageResolution},
}

// Detectors returns the detector names in evaluation order.
func Detectors() []string {
	names := make([]string, len(detectors))
	for i, d := range detectors {
		names[i] = d.name
	}
	return names
}

// Classify runs every detector against raw and concatenates their findings.
func Classify(raw string) []domain.ClassifiedError {
	lower := strings.ToLower(raw)
	var out []domain.ClassifiedError
	for _, d := range detectors {
		for _, e := range d.detect(raw, lower) {
			e.Detector = d.name
			out = append(out, e)
		}
	}
	return out
}

var (
	quotedNotFoundRe = regexp.MustCompile(`"([^"\n]+)": not found`)
	permissionRe     = regexp.MustCompile(`([^\s:"']+): [Pp]ermission denied`)
	parseLineRe      = regexp.MustCompile(`(?i)dockerfile parse error (?:on )?line (\d+)`)
	unknownInstrRe   = regexp.MustCompile(`(?i)unknown instruction:?\s*([A-Za-z_-]+)`)
	pipRequirementRe = regexp.MustCompile(`(?i)satisfies the requirement ([^\s(]+)`)
)

func detectQuotedPath(raw, _ string) []domain.ClassifiedError {
	m := quotedNotFoundRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	name := strings.TrimPrefix(m[1], "/")
	if IsLockfile(name) {
		return []domain.ClassifiedError{{
			Category:    domain.CategoryMissingFile,
			Message:     "Dependency lock file not found: " + name,
			SourceFile:  name,
			Suggestion:  "Install dependencies without relying on a committed lock file, or add " + name + " to the project",
			ProposedFix: "RUN npm install",
		}}
	}
	return []domain.ClassifiedError{{
		Category:    domain.CategoryMissingFile,
		Message:     "Required file not found: " + name,
		SourceFile:  name,
		Suggestion:  "Make sure " + name + " exists in the project or stop copying it",
		ProposedFix: "COPY " + name + " .",
	}}
}

func detectGoModule(_, lower string) []domain.ClassifiedError {
	if !strings.Contains(lower, GoModFile) || !strings.Contains(lower, "not found") {
		return nil
	}
	return []domain.ClassifiedError{{
		Category:    domain.CategoryMissingFile,
		Message:     "Go module files (go.mod/go.sum) not found",
		SourceFile:  GoModFile,
		Suggestion:  "Initialise a Go module during the build or add go.mod and go.sum to the project",
		ProposedFix: "RUN go mod init app && go mod tidy",
	}}
}

func detectLanguageMismatch(_, lower string) []domain.ClassifiedError {
	if !strings.Contains(lower, "go build") || !strings.Contains(lower, ".py") {
		return nil
	}
	return []domain.ClassifiedError{{
		Category:    domain.CategoryLanguageMismatch,
		Message:     "Go build command used on a Python project",
		Suggestion:  "Use a Python base image and run the application with python instead of go build",
		ProposedFix: "FROM " + PythonBaseImage,
	}}
}

// PythonBaseImage replaces a Go toolchain image on language mismatch.
const PythonBaseImage = "python:3.11-slim"

func detectRequirements(_, lower string) []domain.ClassifiedError {
	if !strings.Contains(lower, RequirementsFile) || !strings.Contains(lower, "not found") {
		return nil
	}
	return []domain.ClassifiedError{{
		Category:    domain.CategoryMissingFile,
		Message:     "Python requirements.txt not found",
		SourceFile:  RequirementsFile,
		Suggestion:  "Generate requirements.txt during the build or add it to the project",
		ProposedFix: GenerateRequirementsDirective,
	}}
}

// GenerateRequirementsDirective produces requirements.txt inside the image.
const GenerateRequirementsDirective = "RUN pip freeze > requirements.txt"

func detectLockfile(_, lower string) []domain.ClassifiedError {
	if !strings.Contains(lower, NpmLockfile) || !strings.Contains(lower, "not found") {
		return nil
	}
	return []domain.ClassifiedError{{
		Category:    domain.CategoryMissingFile,
		Message:     "npm package-lock.json not found",
		SourceFile:  NpmLockfile,
		Suggestion:  "Use npm install instead of npm ci, or commit package-lock.json",
		ProposedFix: "RUN npm install",
	}}
}

func detectPermission(raw, lower string) []domain.ClassifiedError {
	if !strings.Contains(lower, "permission denied") && !strings.Contains(raw, "EACCES") {
		return nil
	}
	e := domain.ClassifiedError{
		Category:    domain.CategoryPermissionError,
		Message:     "Permission denied while running a build step",
		Suggestion:  "Make the script executable or run it through its interpreter",
		ProposedFix: "RUN chmod +x <entrypoint>",
	}
	if m := permissionRe.FindStringSubmatch(raw); m != nil {
		e.SourceFile = m[1]
		e.ProposedFix = "RUN chmod +x " + m[1]
	}
	return []domain.ClassifiedError{e}
}

func detectDockerfileParse(raw, lower string) []domain.ClassifiedError {
	if !strings.Contains(lower, "dockerfile parse error") && !strings.Contains(lower, "unknown instruction") {
		return nil
	}
	e := domain.ClassifiedError{
		Category:    domain.CategorySyntaxError,
		Message:     "Dockerfile syntax error",
		Suggestion:  "Correct the malformed instruction",
		ProposedFix: "# rewrite the invalid instruction",
	}
	if m := parseLineRe.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			e.LineNumber = n
			e.ProposedFix = "# rewrite the invalid instruction on line " + m[1]
		}
	}
	if m := unknownInstrRe.FindStringSubmatch(raw); m != nil {
		e.Message += ": unknown instruction " + m[1]
	}
	return []domain.ClassifiedError{e}
}

var packageResolutionTokens = []string{
	"could not find a version that satisfies the requirement",
	"no matching distribution found",
	"npm err! 404",
	"eresolve",
	"unable to resolve dependency tree",
}

func detectPackageResolution(raw, lower string) []domain.ClassifiedError {
	hit := false
	for _, tok := range packageResolutionTokens {
		if strings.Contains(lower, tok) {
			hit = true
			break
		}
	}
	if !hit {
		return nil
	}
	e := domain.ClassifiedError{
		Category:    domain.CategoryDependencyError,
		Message:     "Dependency resolution failed",
		Suggestion:  "Pin dependencies to versions that exist for the selected base image",
		ProposedFix: "# pin the failing dependency to an available version",
	}
	if m := pipRequirementRe.FindStringSubmatch(raw); m != nil {
		e.Message += ": " + m[1]
		e.ProposedFix = "# pin " + m[1] + " to an available version"
	}
	return []domain.ClassifiedError{e}
}
