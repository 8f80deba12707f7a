package docker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

func TestDecodeBuildStreamSuccess(t *testing.T) {
	stream := `{"stream":"Step 1/2 : FROM alpine\n"}
{"status":"Pulling from library/alpine","id":"latest"}
{"stream":" ---> 1d34ffeaf190\nStep 2/2 : RUN true\n"}
{"aux":{"ID":"sha256:abc"}}
{"stream":"Successfully built abc\n"}
`
	var chunks []domain.LogChunk
	res, err := decodeBuildStream(strings.NewReader(stream), func(c domain.LogChunk) { chunks = append(chunks, c) })
	require.NoError(t, err)
	require.True(t, res.Success)

	var texts []string
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	require.Equal(t, []string{
		"Step 1/2 : FROM alpine",
		"latest: Pulling from library/alpine",
		" ---> 1d34ffeaf190",
		"Step 2/2 : RUN true",
		"Successfully built abc",
	}, texts)
}

func TestDecodeBuildStreamError(t *testing.T) {
	stream := `{"stream":"Step 1/3 : COPY requirements.txt .\n"}
{"errorDetail":{"message":"COPY failed: file not found in build context"},"error":"COPY failed: file not found in build context"}
`
	var chunks []domain.LogChunk
	res, err := decodeBuildStream(strings.NewReader(stream), func(c domain.LogChunk) { chunks = append(chunks, c) })
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 1, res.ExitCode)
	require.Equal(t, domain.LogChunk{Stream: "stderr", Text: "COPY failed: file not found in build context"}, chunks[len(chunks)-1])
}

func TestDecodeBuildStreamTruncated(t *testing.T) {
	_, err := decodeBuildStream(strings.NewReader(`{"stream":"Step 1`), func(domain.LogChunk) {})
	require.Error(t, err)
}
