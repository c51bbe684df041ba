package net

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v83/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGitHubFile(t *testing.T) {
	f, err := ParseGitHubFile("mchmarny/sbmi", "/data/rbmi.csv", "v1")
	require.NoError(t, err)
	assert.Equal(t, "mchmarny", f.Owner)
	assert.Equal(t, "sbmi", f.Repo)
	assert.Equal(t, "data/rbmi.csv", f.Path)
	assert.Equal(t, "github.com/mchmarny/sbmi/data/rbmi.csv@v1", f.String())

	for _, repo := range []string{"", "sbmi", "a/b/c", "/b"} {
		_, err := ParseGitHubFile(repo, "x.csv", "")
		assert.Error(t, err, repo)
	}
	_, err = ParseGitHubFile("a/b", "", "")
	assert.Error(t, err)
}

func TestFetchGitHubFile(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte(testCSV))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/mchmarny/sbmi/contents/data/rbmi.csv" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"type":"file","name":"rbmi.csv","path":"data/rbmi.csv","encoding":"base64","content":%q}`, content)
	}))
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	b, err := FetchGitHubFile(context.Background(), client, &GitHubFile{
		Owner: "mchmarny",
		Repo:  "sbmi",
		Path:  "data/rbmi.csv",
		Ref:   "main",
	})
	require.NoError(t, err)
	assert.Equal(t, testCSV, string(b))

	_, err = FetchGitHubFile(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestCheckRateLimit_NoWait(t *testing.T) {
	// should return immediately
	checkRateLimit(nil)
	checkRateLimit(&github.Response{Rate: github.Rate{Remaining: 100}})
	checkRateLimit(&github.Response{Rate: github.Rate{Remaining: 0}})
}
