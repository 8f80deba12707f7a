package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-autobuild/internal/config"
)

func TestOpenAIGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + "```dockerfile\\nFROM alpine\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAI(srv.URL+"/", "sk-test", "gpt-test", 5*time.Second)
	out, err := g.Generate(context.Background(), "fix it")
	require.NoError(t, err)
	require.Equal(t, "```dockerfile\nFROM alpine\n```", out)

	require.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "user", got.Messages[1].Role)
	require.Equal(t, "fix it", got.Messages[1].Content)
}

func TestOpenAIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusTooManyRequests, `{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`, "quota exceeded"},
		{"html error", http.StatusBadGateway, `<html>bad gateway</html>`, "status 502"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, "empty response"},
		{"garbage", http.StatusOK, `not json`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOpenAI(srv.URL, "", "m", 5*time.Second).Generate(context.Background(), "p")
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOpenAITimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL, "", "m", 100*time.Millisecond).Generate(context.Background(), "p")
	require.Error(t, err)
}

func TestCommandGenerate(t *testing.T) {
	g, err := NewCommand([]string{"sh", "-c", `read first; printf 'FROM alpine\n# %s\n' "$first"`}, 5*time.Second)
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), "hello\nworld")
	require.NoError(t, err)
	require.Equal(t, "FROM alpine\n# hello", out)
}

func TestCommandFailures(t *testing.T) {
	_, err := NewCommand(nil, time.Second)
	require.Error(t, err)

	g, err := NewCommand([]string{"sh", "-c", "echo boom >&2; exit 2"}, 5*time.Second)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "p")
	require.ErrorContains(t, err, "boom")

	g, err = NewCommand([]string{"sh", "-c", "cat >/dev/null"}, 5*time.Second)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "p")
	require.ErrorContains(t, err, "empty response")

	g, err = NewCommand([]string{"/nonexistent/claude"}, 5*time.Second)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "p")
	require.ErrorContains(t, err, "not found")
}

func TestFromConfig(t *testing.T) {
	g, err := FromConfig(config.GeneratorConfig{Provider: config.GeneratorNone})
	require.NoError(t, err)
	require.Nil(t, g)

	g, err = FromConfig(config.GeneratorConfig{Provider: config.GeneratorOpenAI, Model: "m"})
	require.NoError(t, err)
	require.IsType(t, &OpenAI{}, g)

	g, err = FromConfig(config.GeneratorConfig{Provider: config.GeneratorCommand, Command: []string{"claude", "--print"}})
	require.NoError(t, err)
	require.IsType(t, &Command{}, g)

	_, err = FromConfig(config.GeneratorConfig{Provider: "bard"})
	require.Error(t, err)
}
