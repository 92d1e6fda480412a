package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEdgeClientTranscribe(t *testing.T) {
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req edgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotID = req.RecordingID
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer server.Close()

	client := NewEdgeClient(server.URL, time.Second)
	text, err := client.Transcribe(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected transcript %q", text)
	}
	if gotID != "rec-1" {
		t.Fatalf("expected recording id forwarded, got %q", gotID)
	}
}

func TestEdgeClientSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "short version"})
	}))
	defer server.Close()

	client := NewEdgeClient(server.URL, time.Second)
	summary, err := client.Summarize(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != "short version" {
		t.Fatalf("unexpected summary %q", summary)
	}
}

func TestEdgeClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "model overloaded"})
	}))
	defer server.Close()

	client := NewEdgeClient(server.URL, time.Second)
	if _, err := client.Transcribe(context.Background(), "rec-1"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

type blobStoreStub struct {
	key  string
	mime string
}

func (b *blobStoreStub) Save(_ context.Context, name string, _ []byte, contentType string) (string, string, error) {
	b.key = name
	b.mime = contentType
	return name, "https://cdn.example.com/" + name, nil
}

func TestAssetUploaderKeyLayout(t *testing.T) {
	store := &blobStoreStub{}
	uploader := NewAssetUploader(store, "")

	result, err := uploader.Upload(context.Background(), "rec-1", []byte("audio"), "audio/mp4")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if store.key != "recordings/rec-1.m4a" {
		t.Fatalf("unexpected key %q", store.key)
	}
	if result.PublicURL != "https://cdn.example.com/recordings/rec-1.m4a" {
		t.Fatalf("unexpected url %q", result.PublicURL)
	}
	if store.mime != "audio/mp4" {
		t.Fatalf("expected content type forwarded, got %q", store.mime)
	}
}
