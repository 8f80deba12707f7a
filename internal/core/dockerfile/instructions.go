package dockerfile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// Instruction is one build directive with its 1-based source line range.
type Instruction struct {
	Command   string   // lower-case keyword, e.g. "from"
	Flags     []string // --flag=value entries
	Args      []string
	Original  string
	StartLine int
	EndLine   int
}

// Parse parses text with the BuildKit Dockerfile parser.
func Parse(text string) ([]Instruction, error) {
	res, err := parser.Parse(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	out := make([]Instruction, 0, len(res.AST.Children))
	for _, n := range res.AST.Children {
		ins := Instruction{
			Command:   strings.ToLower(n.Value),
			Flags:     append([]string(nil), n.Flags...),
			Original:  n.Original,
			StartLine: n.StartLine,
			EndLine:   n.EndLine,
		}
		for arg := n.Next; arg != nil; arg = arg.Next {
			ins.Args = append(ins.Args, arg.Value)
		}
		out = append(out, ins)
	}
	return out, nil
}

// Instructions returns the instructions of text, falling back to a line
// scanner when the text is not a parseable Dockerfile.
func Instructions(text string) []Instruction {
	if ins, err := Parse(text); err == nil {
		return ins
	}
	return scan(text)
}

// Validate reports whether text is a usable build definition: it must parse
// and contain at least one FROM instruction.
func Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("definition is empty")
	}
	ins, err := Parse(text)
	if err != nil {
		return fmt.Errorf("parse definition: %w", err)
	}
	for _, i := range ins {
		if i.Command == "from" {
			return nil
		}
	}
	return errors.New("definition has no FROM instruction")
}

// scan is a tolerant line-based splitter honouring backslash continuations.
func scan(text string) []Instruction {
	lines := strings.Split(text, "\n")
	var out []Instruction
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		start := i
		full := trimmed
		for strings.HasSuffix(full, `\`) && i+1 < len(lines) {
			i++
			full = strings.TrimSuffix(full, `\`) + " " + strings.TrimSpace(lines[i])
		}
		fields := strings.Fields(full)
		ins := Instruction{
			Command:   strings.ToLower(fields[0]),
			Original:  strings.Join(lines[start:i+1], "\n"),
			StartLine: start + 1,
			EndLine:   i + 1,
		}
		for _, f := range fields[1:] {
			if strings.HasPrefix(f, "--") && len(ins.Args) == 0 {
				ins.Flags = append(ins.Flags, f)
				continue
			}
			ins.Args = append(ins.Args, f)
		}
		out = append(out, ins)
	}
	return out
}

// ReplaceLines replaces the 1-based inclusive line range [start, end] of text
// with replacement lines. An empty replacement deletes the range.
func ReplaceLines(text string, start, end int, replacement ...string) string {
	lines := strings.Split(text, "\n")
	if start < 1 || end < start || end > len(lines) {
		return text
	}
	out := make([]string, 0, len(lines)-(end-start+1)+len(replacement))
	out = append(out, lines[:start-1]...)
	out = append(out, replacement...)
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n")
}

// InsertBefore inserts lines before the 1-based line number at.
func InsertBefore(text string, at int, insert ...string) string {
	lines := strings.Split(text, "\n")
	if at < 1 || at > len(lines) {
		return text
	}
	out := make([]string, 0, len(lines)+len(insert))
	out = append(out, lines[:at-1]...)
	out = append(out, insert...)
	out = append(out, lines[at-1:]...)
	return strings.Join(out, "\n")
}
