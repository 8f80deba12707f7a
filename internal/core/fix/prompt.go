package fix

import (
	"fmt"
	"strings"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

// maxManifestEntries bounds the file listing embedded in a prompt.
const maxManifestEntries = 200

// PromptContext carries everything a definition generator needs to propose a
// replacement definition.
type PromptContext struct {
	Definition string                   `json:"definition"`
	Manifest   []string                 `json:"manifest"`
	Errors     []domain.ClassifiedError `json:"errors"`
	Attempt    int                      `json:"attempt"`
	MaxRetries int                      `json:"max_retries"`
}

// Render builds the textual prompt sent to the generator.
func (p PromptContext) Render() string {
	var b strings.Builder

	b.WriteString("# Dockerfile Correction\n\n")
	fmt.Fprintf(&b, "Build attempt %d of %d failed and no automatic rewrite applied.\n", p.Attempt, p.MaxRetries)
	b.WriteString("Produce a corrected Dockerfile for the project below.\n\n")

	b.WriteString("## Build Errors\n\n")
	for i, e := range p.Errors {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e)
		if e.LineNumber > 0 {
			fmt.Fprintf(&b, "   line: %d\n", e.LineNumber)
		}
		if e.Suggestion != "" {
			fmt.Fprintf(&b, "   suggestion: %s\n", e.Suggestion)
		}
		if e.ProposedFix != "" {
			fmt.Fprintf(&b, "   hint: %s\n", e.ProposedFix)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Current Dockerfile\n\n")
	b.WriteString("```dockerfile\n")
	b.WriteString(strings.TrimRight(p.Definition, "\n"))
	b.WriteString("\n```\n\n")

	writeManifest(&b, p.Manifest)
	writeOutputRules(&b)
	return b.String()
}

// InitialPrompt asks a generator for a first definition for a project.
// instruction is optional free text from the user.
func InitialPrompt(manifest []string, instruction string) string {
	var b strings.Builder
	b.WriteString("# Dockerfile Generation\n\n")
	b.WriteString("Write a Dockerfile that builds and runs the project below.\n\n")
	if s := strings.TrimSpace(instruction); s != "" {
		b.WriteString("## User Instructions\n\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	writeManifest(&b, manifest)
	writeOutputRules(&b)
	return b.String()
}

func writeManifest(b *strings.Builder, manifest []string) {
	b.WriteString("## Project Files\n\n")
	if len(manifest) == 0 {
		b.WriteString("(no files)\n\n")
		return
	}
	shown := manifest
	if len(shown) > maxManifestEntries {
		shown = shown[:maxManifestEntries]
	}
	for _, f := range shown {
		fmt.Fprintf(b, "- %s\n", f)
	}
	if n := len(manifest) - len(shown); n > 0 {
		fmt.Fprintf(b, "- ... and %d more\n", n)
	}
	b.WriteString("\n")
}

func writeOutputRules(b *strings.Builder) {
	b.WriteString("## Instructions\n\n")
	b.WriteString("Reply with the complete Dockerfile only, inside a single ```dockerfile fenced block.\n")
	b.WriteString("The Dockerfile must start from a FROM instruction.\n")
}
