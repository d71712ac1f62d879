package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", p.Model(), DefaultModel)
	}
}

func TestSynthesize(t *testing.T) {
	var (
		mu   sync.Mutex
		body map[string]any
		auth string
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini-tts", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatal(err)
	}
	clip, err := p.Synthesize(context.Background(), "bob says yo", tts.VoiceProfile{ID: "nova", SpeedFactor: 1.5})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != "ID3fake" || clip.Format != tts.FormatMP3 {
		t.Errorf("clip = %q (%s)", clip.Data, clip.Format)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/v1/audio/speech" {
		t.Errorf("path = %q, want /v1/audio/speech", path)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if body["input"] != "bob says yo" || body["voice"] != "nova" || body["model"] != "gpt-4o-mini-tts" {
		t.Errorf("body = %v", body)
	}
	if body["response_format"] != "mp3" || body["speed"] != 1.5 {
		t.Errorf("format/speed in body = %v", body)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"))
	if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{ID: "nobody"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := New("sk-test", "")
	if _, err := p.Synthesize(context.Background(), " ", tts.VoiceProfile{}); err != tts.ErrEmptyText {
		t.Errorf("error = %v, want ErrEmptyText", err)
	}
}

func TestListVoices(t *testing.T) {
	p, _ := New("sk-test", "")
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(voices) != len(builtinVoices) {
		t.Fatalf("got %d voices, want %d", len(voices), len(builtinVoices))
	}
	for _, v := range voices {
		if v.Provider != "openai" || v.ID == "" {
			t.Errorf("voice = %+v", v)
		}
	}
}
