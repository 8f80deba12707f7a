// Package dockerfile holds text-level helpers for build definitions: fence
// stripping, instruction discovery and content digests.
package dockerfile

import "strings"

const fence = "```"

// StripFences removes Markdown code-fence markup surrounding a definition.
// When the text contains a fenced block, the content of the first block is
// returned; otherwise the trimmed text is. The result ends with a newline
// unless it is empty.
func StripFences(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if start := strings.Index(text, fence); start >= 0 {
		rest := text[start+len(fence):]
		// drop the info string (```dockerfile)
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		} else {
			rest = ""
		}
		if end := strings.Index(rest, fence); end >= 0 {
			rest = rest[:end]
		}
		text = rest
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return text + "\n"
}
