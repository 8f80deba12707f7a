package dockerfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "FROM alpine\nRUN true\n\n", "FROM alpine\nRUN true\n"},
		{"fenced with info", "```dockerfile\nFROM alpine\n```", "FROM alpine\n"},
		{"fenced with prose", "Here you go:\n```Dockerfile\nFROM alpine\nCMD [\"sh\"]\n```\nGood luck", "FROM alpine\nCMD [\"sh\"]\n"},
		{"unterminated fence", "```\nFROM alpine", "FROM alpine\n"},
		{"crlf", "FROM alpine\r\nRUN true\r\n", "FROM alpine\nRUN true\n"},
		{"empty", "```\n```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestParseLineRanges(t *testing.T) {
	text := "FROM --platform=linux/amd64 golang:1.21 AS builder\nWORKDIR /src\nRUN go mod download && \\\n    go build -o app .\nCOPY --from=builder /src/app /app\n"
	ins, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, ins, 4)

	require.Equal(t, "from", ins[0].Command)
	require.Equal(t, []string{"--platform=linux/amd64"}, ins[0].Flags)
	require.Equal(t, "golang:1.21", ins[0].Args[0])
	require.Equal(t, "builder", ins[0].Args[len(ins[0].Args)-1])

	require.Equal(t, "run", ins[2].Command)
	require.Equal(t, 3, ins[2].StartLine)
	require.Equal(t, 4, ins[2].EndLine)

	require.Equal(t, "copy", ins[3].Command)
	require.Equal(t, []string{"--from=builder"}, ins[3].Flags)
	require.Equal(t, []string{"/src/app", "/app"}, ins[3].Args)
}

func TestScanHonoursContinuations(t *testing.T) {
	text := "FROM alpine\n# comment\nRUNN echo hi \\\n  there\n"
	ins := scan(text)
	require.Len(t, ins, 2)
	require.Equal(t, "runn", ins[1].Command)
	require.Equal(t, 3, ins[1].StartLine)
	require.Equal(t, 4, ins[1].EndLine)
	require.Equal(t, []string{"echo", "hi", "there"}, ins[1].Args)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("FROM alpine\nCMD [\"true\"]\n"))
	require.Error(t, Validate(""))
	require.Error(t, Validate("RUN echo no base\n"))
	require.Error(t, Validate("This is not a Dockerfile at all, sorry.\n"))
}

func TestReplaceAndInsertLines(t *testing.T) {
	text := "a\nb\nc\nd"
	require.Equal(t, "a\nX\nd", ReplaceLines(text, 2, 3, "X"))
	require.Equal(t, "a\nd", ReplaceLines(text, 2, 3))
	require.Equal(t, text, ReplaceLines(text, 0, 1, "X"))
	require.Equal(t, "a\nX\nb\nc\nd", InsertBefore(text, 2, "X"))
}

func TestDigestStable(t *testing.T) {
	require.Equal(t, Digest("FROM alpine\n"), Digest("FROM alpine\n"))
	require.NotEqual(t, Digest("FROM alpine\n"), Digest("FROM busybox\n"))
	require.Len(t, Digest("x"), 16)
}
