package fix

import (
	"path"
	"regexp"
	"strings"

	"github.com/melih/lighthouse-autobuild/internal/core/classify"
	"github.com/melih/lighthouse-autobuild/internal/core/dockerfile"
	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

// Rule names recorded on rewrite decisions.
const (
	RuleGoToPythonBase       = "go_to_python_base"
	RuleGenerateRequirements = "generate_requirements"
	RuleDropLockfile         = "drop_lockfile"
)

// rule is a deterministic, idempotent rewrite keyed on a classified error.
type rule struct {
	name    string
	matches func(domain.ClassifiedError) bool
	apply   func(def string) string
}

var rules = []rule{
	{
		name: RuleGoToPythonBase,
		matches: func(e domain.ClassifiedError) bool {
			return e.Category == domain.CategoryLanguageMismatch
		},
		apply: goToPythonBase,
	},
	{
		name: RuleGenerateRequirements,
		matches: func(e domain.ClassifiedError) bool {
			return e.Category == domain.CategoryMissingFile && e.SourceFile == classify.RequirementsFile
		},
		apply: generateRequirements,
	},
	{
		name: RuleDropLockfile,
		matches: func(e domain.ClassifiedError) bool {
			return e.Category == domain.CategoryMissingFile && classify.IsLockfile(e.SourceFile)
		},
		apply: dropLockfile,
	},
}

// Rules returns the names of the local rewrite rules.
func Rules() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

// applyRules composes every rule matching errs, in error order, each at most
// once. A rule counts as applied only when it changed the text.
func applyRules(errs []domain.ClassifiedError, def string) (string, []string) {
	ran := make(map[string]bool, len(rules))
	var applied []string
	for _, e := range errs {
		for _, r := range rules {
			if ran[r.name] || !r.matches(e) {
				continue
			}
			ran[r.name] = true
			if out := r.apply(def); out != def {
				def = out
				applied = append(applied, r.name)
			}
		}
	}
	return def, applied
}

func isGoImage(image string) bool {
	return image == "golang" || strings.HasPrefix(image, "golang:") || strings.HasPrefix(image, "golang@") ||
		strings.HasPrefix(image, "docker.io/library/golang")
}

// goToPythonBase swaps every golang base image for the Python base image,
// keeping flags and the stage alias.
func goToPythonBase(def string) string {
	ins := dockerfile.Instructions(def)
	for i := len(ins) - 1; i >= 0; i-- {
		in := ins[i]
		if in.Command != "from" || len(in.Args) == 0 || !isGoImage(in.Args[0]) {
			continue
		}
		parts := append([]string{"FROM"}, in.Flags...)
		parts = append(parts, classify.PythonBaseImage)
		parts = append(parts, in.Args[1:]...)
		def = dockerfile.ReplaceLines(def, in.StartLine, in.EndLine, strings.Join(parts, " "))
	}
	return def
}

func isCopy(in dockerfile.Instruction) bool {
	return (in.Command == "copy" || in.Command == "add") && len(in.Args) >= 2
}

// splitSources returns the COPY/ADD sources not matched by drop.
func splitSources(in dockerfile.Instruction, drop func(string) bool) (kept []string, dropped bool) {
	for _, src := range in.Args[:len(in.Args)-1] {
		if drop(src) {
			dropped = true
			continue
		}
		kept = append(kept, src)
	}
	return kept, dropped
}

func copyLine(in dockerfile.Instruction, sources []string) string {
	parts := append([]string{strings.ToUpper(in.Command)}, in.Flags...)
	parts = append(parts, sources...)
	parts = append(parts, in.Args[len(in.Args)-1])
	return strings.Join(parts, " ")
}

func isRequirements(src string) bool {
	return path.Base(src) == classify.RequirementsFile
}

// generateRequirements makes the build produce requirements.txt itself
// instead of copying it from the context.
func generateRequirements(def string) string {
	if strings.Contains(def, classify.GenerateRequirementsDirective) {
		return def
	}
	ins := dockerfile.Instructions(def)
	for _, in := range ins {
		if !isCopy(in) {
			continue
		}
		kept, dropped := splitSources(in, isRequirements)
		if !dropped {
			continue
		}
		replacement := []string{}
		if len(kept) > 0 {
			replacement = append(replacement, copyLine(in, kept))
		}
		replacement = append(replacement, classify.GenerateRequirementsDirective)
		return dockerfile.ReplaceLines(def, in.StartLine, in.EndLine, replacement...)
	}
	for _, in := range ins {
		if in.Command != "from" && strings.Contains(in.Original, classify.RequirementsFile) {
			return dockerfile.InsertBefore(def, in.StartLine, classify.GenerateRequirementsDirective)
		}
	}
	return def
}

var npmCIRe = regexp.MustCompile(`\bnpm ci\b`)

// dropLockfile stops the build from depending on a committed lock file.
func dropLockfile(def string) string {
	ins := dockerfile.Instructions(def)
	for i := len(ins) - 1; i >= 0; i-- {
		in := ins[i]
		if !isCopy(in) {
			continue
		}
		kept, dropped := splitSources(in, func(src string) bool { return classify.IsLockfile(path.Base(src)) })
		if !dropped {
			continue
		}
		if len(kept) == 0 {
			def = dockerfile.ReplaceLines(def, in.StartLine, in.EndLine)
			continue
		}
		def = dockerfile.ReplaceLines(def, in.StartLine, in.EndLine, copyLine(in, kept))
	}
	return npmCIRe.ReplaceAllString(def, "npm install")
}
