package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestTranscribeSurfacesClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "key", "", "ko-KR", 2*time.Second, TranscriptOptions{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	text, err := c.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	if err == nil {
		t.Fatalf("expected an error, got transcript %q", text)
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("expected the status in the error, got %v", err)
	}
}

func TestTranscribeRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "downstream hiccup", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"text":"안녕하세요"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "key", "", "ko-KR", 5*time.Second, TranscriptOptions{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	text, err := c.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "안녕하세요" {
		t.Fatalf("unexpected transcript %q", text)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected a retry after the server error, got %d calls", calls.Load())
	}
}
