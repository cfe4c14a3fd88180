package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/rerankd/internal/rerank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRerankCommand(t *testing.T) {
	var got rerank.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"rerankd","results":[{"index":1,"relevance_score":0.9}]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "", "rerank", "--server", srv.URL, "-q", "capital", "-n", "1", "--no-documents", "a", "b")
	require.NoError(t, err)

	assert.Equal(t, "capital", got.Query)
	assert.Equal(t, []string{"a", "b"}, got.Documents)
	require.NotNil(t, got.TopN)
	assert.Equal(t, 1, *got.TopN)
	assert.Nil(t, got.ScoreThreshold)
	assert.False(t, got.ReturnDocuments())

	var resp rerank.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Results[0].Index)
}

func TestRerankCommand_DocumentsFromFileAndStdin(t *testing.T) {
	var got rerank.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"m","results":[]}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "docs.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\n\n  second  \n"), 0600))

	_, err := execute(t, "", "rerank", "--server", srv.URL, "-q", "q", "--file", path, "--threshold", "0.5")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, got.Documents)
	require.NotNil(t, got.ScoreThreshold)
	assert.Equal(t, 0.5, *got.ScoreThreshold)

	_, err = execute(t, "one\ntwo\n", "rerank", "--server", srv.URL, "-q", "q", "--file", "-")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got.Documents)
}

func TestRerankCommand_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"backend unreachable"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "", "rerank", "--server", srv.URL, "-q", "q", "a")
	require.Error(t, err)
	assert.Equal(t, "server returned status 502: backend unreachable", err.Error())
}

func TestRerankCommand_RequiresQuery(t *testing.T) {
	_, err := execute(t, "", "rerank", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestHealthCommand(t *testing.T) {
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok","version":"1.2.3"}`))
		case "/ready":
			if !down.Load() {
				_, _ = w.Write([]byte(`{"status":"ready"}`))
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable","error":"backend unreachable"}`))
		}
	}))
	defer srv.Close()

	out, err := execute(t, "", "health", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status:  ok")
	assert.Contains(t, out, "Server Version: 1.2.3")
	assert.Contains(t, out, "Backend:        ready")

	down.Store(true)
	out, err = execute(t, "", "health", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, out, "Backend:        unavailable")
	assert.Contains(t, err.Error(), "503")
}
