package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentradio/radio/internal/cache"
	"github.com/agentradio/radio/internal/ttypes"
)

type fakeWriter struct {
	text   string
	err    error
	key    string
	prompt string
	calls  int
}

func (f *fakeWriter) Write(ctx context.Context, apiKey, prompt string) (string, error) {
	f.calls++
	f.key = apiKey
	f.prompt = prompt
	return f.text, f.err
}

type fakeVoice struct {
	audio []byte
	err   error
	key   string
	text  string
	voice string
	calls int
}

func (f *fakeVoice) Speak(ctx context.Context, apiKey, text, voiceID string) ([]byte, error) {
	f.calls++
	f.key = apiKey
	f.text = text
	f.voice = voiceID
	return f.audio, f.err
}

var bothKeys = Secrets{GoogleAPIKey: "g-key", ElevenLabsAPIKey: "x-key"}

func newTestServer(w *fakeWriter, v *fakeVoice, secrets Secrets) *httptest.Server {
	s := NewServer(w, v, WithSecrets(StaticSecrets(secrets)))
	return httptest.NewServer(s.Handler())
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestGenerate(t *testing.T) {
	w := &fakeWriter{text: "[warmly] Good evening, listeners..."}
	srv := newTestServer(w, &fakeVoice{}, bothKeys)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/generate", `{"instructions":"You are a jazz host."}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Text != w.text {
		t.Errorf("text = %q", body.Text)
	}
	if w.key != "g-key" {
		t.Errorf("writer key = %q", w.key)
	}
	want := "You are a jazz host.\n\n" + PromptSuffix
	if w.prompt != want {
		t.Errorf("prompt does not end with the fixed suffix:\n%s", w.prompt)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		secrets    Secrets
		writerErr  error
		wantStatus int
		wantError  string
		wantCalls  int
	}{
		{
			name:       "missing instructions",
			body:       `{}`,
			secrets:    bothKeys,
			wantStatus: http.StatusBadRequest,
			wantError:  MsgInstructionsRequired,
		},
		{
			name:       "blank instructions",
			body:       `{"instructions":"   "}`,
			secrets:    bothKeys,
			wantStatus: http.StatusBadRequest,
			wantError:  MsgInstructionsRequired,
		},
		{
			name:       "malformed body",
			body:       `{"instructions":`,
			secrets:    bothKeys,
			wantStatus: http.StatusInternalServerError,
			wantError:  MsgGenerateFailed,
		},
		{
			name:       "empty body",
			body:       ``,
			secrets:    bothKeys,
			wantStatus: http.StatusInternalServerError,
			wantError:  MsgGenerateFailed,
		},
		{
			name:       "missing key",
			body:       `{"instructions":"host"}`,
			secrets:    Secrets{ElevenLabsAPIKey: "x-key"},
			wantStatus: http.StatusInternalServerError,
			wantError:  MsgGoogleKeyMissing,
		},
		{
			name:       "upstream failure",
			body:       `{"instructions":"host"}`,
			secrets:    bothKeys,
			writerErr:  errors.New("quota exceeded"),
			wantStatus: http.StatusInternalServerError,
			wantError:  MsgGenerateFailed,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{err: tt.writerErr}
			srv := newTestServer(w, &fakeVoice{}, tt.secrets)
			defer srv.Close()

			resp := post(t, srv.URL+"/api/generate", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := decodeError(t, resp); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
			if w.calls != tt.wantCalls {
				t.Errorf("writer calls = %d, want %d", w.calls, tt.wantCalls)
			}
		})
	}
}

func TestSpeak(t *testing.T) {
	audio := []byte("ID3\x03\x00fake-mpeg-frames")
	v := &fakeVoice{audio: audio}
	srv := newTestServer(&fakeWriter{}, v, bothKeys)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/speak", `{"text":"[sigh] Hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if resp.ContentLength != int64(len(audio)) {
		t.Errorf("Content-Length = %d, want %d", resp.ContentLength, len(audio))
	}
	got, _ := io.ReadAll(resp.Body)
	if string(got) != string(audio) {
		t.Errorf("body = %q", got)
	}
	if v.voice != ttypes.DefaultVoiceID {
		t.Errorf("voice = %q, want default", v.voice)
	}
	if v.key != "x-key" || v.text != "[sigh] Hello" {
		t.Errorf("speak called with key %q text %q", v.key, v.text)
	}
}

func TestSpeakCustomVoice(t *testing.T) {
	v := &fakeVoice{audio: []byte("ID3")}
	srv := newTestServer(&fakeWriter{}, v, bothKeys)
	defer srv.Close()

	post(t, srv.URL+"/api/speak", `{"text":"hi","voiceId":"21m00Tcm4TlvDq8ikWAM"}`)
	if v.voice != "21m00Tcm4TlvDq8ikWAM" {
		t.Errorf("voice = %q", v.voice)
	}
}

func TestSpeakErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		secrets    Secrets
		voiceErr   error
		wantStatus int
		wantError  string
	}{
		{"missing text", `{"voiceId":"abc"}`, bothKeys, nil, http.StatusBadRequest, MsgTextRequired},
		{"malformed body", `not json`, bothKeys, nil, http.StatusInternalServerError, MsgSpeakFailed},
		{"wrong field type", `{"text":42}`, bothKeys, nil, http.StatusInternalServerError, MsgSpeakFailed},
		{"missing key", `{"text":"hi"}`, Secrets{GoogleAPIKey: "g"}, nil, http.StatusInternalServerError, MsgElevenLabsKeyMissing},
		{"upstream failure", `{"text":"hi"}`, bothKeys, errors.New("boom"), http.StatusInternalServerError, MsgSpeakFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeWriter{}, &fakeVoice{err: tt.voiceErr}, tt.secrets)
			defer srv.Close()

			resp := post(t, srv.URL+"/api/speak", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := decodeError(t, resp); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestSecretsReadPerRequest(t *testing.T) {
	var secrets Secrets
	s := NewServer(&fakeWriter{text: "hi"}, &fakeVoice{}, WithSecrets(func() (Secrets, error) { return secrets, nil }))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	if resp := post(t, srv.URL+"/api/generate", `{"instructions":"x"}`); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status without key = %d", resp.StatusCode)
	}

	secrets.GoogleAPIKey = "late"
	if resp := post(t, srv.URL+"/api/generate", `{"instructions":"x"}`); resp.StatusCode != http.StatusOK {
		t.Errorf("status after key added = %d", resp.StatusCode)
	}
}

func TestEnvSecrets(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "from-env")
	t.Setenv("ELEVENLABS_API_KEY", "")

	s, err := EnvSecrets()
	if err != nil {
		t.Fatal(err)
	}
	if s.GoogleAPIKey != "from-env" || s.ElevenLabsAPIKey != "" {
		t.Errorf("EnvSecrets() = %+v", s)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("Be calm.")
	if !strings.HasPrefix(p, "Be calm.\n\nGenerate a single radio segment now.") {
		t.Errorf("prompt prefix = %q", p[:40])
	}
	if !strings.HasSuffix(p, "Just the spoken text with tags, nothing else.") {
		t.Error("prompt does not end with the closing line")
	}
}

func TestHealthAndReadiness(t *testing.T) {
	tests := []struct {
		name       string
		secrets    Secrets
		wantStatus int
		wantReady  string
	}{
		{"both configured", bothKeys, http.StatusOK, "ready"},
		{"speech missing", Secrets{GoogleAPIKey: "g"}, http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeWriter{}, &fakeVoice{}, tt.secrets)
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/health")
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("/health status = %d", resp.StatusCode)
			}

			resp, err = http.Get(srv.URL + "/ready")
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("/ready status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var status HealthStatus
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				t.Fatal(err)
			}
			if status.Status != tt.wantReady {
				t.Errorf("/ready status field = %q, want %q", status.Status, tt.wantReady)
			}
			if len(status.Dependencies) != 2 {
				t.Errorf("dependencies = %v", status.Dependencies)
			}
		})
	}
}

func TestRoutesRejectWrongMethod(t *testing.T) {
	srv := newTestServer(&fakeWriter{}, &fakeVoice{}, bothKeys)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/generate")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/generate status = %d, want 405", resp.StatusCode)
	}
}

func TestSpeakServesRepeatsFromCache(t *testing.T) {
	sc, err := cache.New(cache.Config{MemoryCapacity: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	v := &fakeVoice{audio: []byte("mp3-bytes")}
	s := NewServer(&fakeWriter{}, v, WithSecrets(StaticSecrets(bothKeys)), WithSpeechCache(sc))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for i := 0; i < 3; i++ {
		resp := post(t, srv.URL+"/api/speak", `{"text":"Same words."}`)
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || string(body) != "mp3-bytes" {
			t.Fatalf("request %d: %d %q", i, resp.StatusCode, body)
		}
	}
	if v.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", v.calls)
	}

	// another voice is a different entry
	post(t, srv.URL+"/api/speak", `{"text":"Same words.","voiceId":"other"}`)
	if v.calls != 2 {
		t.Errorf("upstream calls = %d, want 2", v.calls)
	}

	// failures are not cached
	v.err = errors.New("quota")
	if resp := post(t, srv.URL+"/api/speak", `{"text":"New words."}`); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if _, _, ok := sc.Get(cache.Key(ttypes.DefaultVoiceID, "New words.")); ok {
		t.Error("failed speech was cached")
	}
}
