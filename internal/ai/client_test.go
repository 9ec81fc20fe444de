package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/whispr/internal/config"
)

func clientFor(t *testing.T, url string) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.InferenceURL = url
	return NewClient(cfg)
}

func TestClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"},{"name":"codellama","details":{"context_length":16384}}]}`))
	}))
	defer srv.Close()

	models, err := clientFor(t, srv.URL).ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3", models[0].Name)
	assert.Equal(t, 16384, models[1].Details.ContextLength)
}

func TestClient_ListModels_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := clientFor(t, srv.URL).ListModels(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadResponse))
}

func TestClient_ListModels_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := clientFor(t, srv.URL).ListModels(context.Background())
	assert.True(t, errors.Is(err, ErrBadResponse))
}

func TestClient_ListModels_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := clientFor(t, url).ListModels(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestClient_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"  hello  "}`))
	}))
	defer srv.Close()

	out, err := clientFor(t, srv.URL).Generate(context.Background(), GenerateRequest{
		Model:   "llama3",
		Prompt:  "hi",
		Stream:  true,
		Options: GenerateOptions{MaxTokens: 200, NumPredict: 200, Temperature: 0.2},
	})
	require.NoError(t, err)
	assert.Equal(t, "  hello  ", out)

	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, false, got["stream"])
	opts := got["options"].(map[string]any)
	assert.Equal(t, float64(200), opts["maxTokens"])
	assert.Equal(t, float64(200), opts["num_predict"])
	assert.Equal(t, 0.2, opts["temperature"])
}

func TestClient_Generate_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := clientFor(t, srv.URL).Generate(context.Background(), GenerateRequest{Model: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.Contains(t, err.Error(), "404")
}

func TestClient_AcceptsAny2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNonAuthoritativeInfo)
		if r.URL.Path == "/tags" {
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	c := clientFor(t, srv.URL)
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 1)

	out, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestClient_RefusesRemoteRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://inference.example.com"+r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	c := clientFor(t, srv.URL)
	_, err := c.ListModels(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.Contains(t, err.Error(), "refusing redirect")

	_, err = c.Generate(context.Background(), GenerateRequest{Model: "llama3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
}

func TestClient_FollowsLoopbackRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tags", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/v2/tags", http.StatusFound)
	})
	mux.HandleFunc("/v2/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	models, err := clientFor(t, srv.URL).ListModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 1)
}
