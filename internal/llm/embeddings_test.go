package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedReturnsOneVectorPerText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprintf(w, `{"data":[{"embedding":[0.1,0.2,%d]}]}`, len(req.Input))
	}))
	defer srv.Close()

	client := NewEmbeddingClient(testConfig(srv.URL, true))
	defer client.Close()

	vectors, err := client.Embed(context.Background(), []string{"ab", "cdef"})
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][2] != 2 || vectors[1][2] != 4 {
		t.Fatalf("vectors do not match inputs: %v", vectors)
	}
}

func TestEmbedPropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewEmbeddingClient(testConfig(srv.URL, true))
	defer client.Close()

	if _, err := client.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatalf("expected error for non-success status")
	}
}

func TestEmbedAfterClose(t *testing.T) {
	client := NewEmbeddingClient(testConfig("http://unused", true))
	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if _, err := client.Embed(context.Background(), []string{"x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
