package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Fatalf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"  Strong backend profile.  "}}]}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIClient returned error: %v", err)
	}
	text, err := client.Complete(context.Background(), Request{Prompt: "Summarise", JSON: true, Schema: `{"score":number}`})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "Strong backend profile." {
		t.Fatalf("text = %q", text)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json response format, got %+v", got.ResponseFormat)
	}
	if !strings.Contains(got.Messages[1].Content, `{"score":number}`) {
		t.Fatalf("schema not appended to prompt: %q", got.Messages[1].Content)
	}
}

func TestOpenAICompleteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rate limited"}`)
	}))
	defer srv.Close()

	client, _ := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), Request{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-1" {
			t.Fatalf("model = %q", r.FormValue("model"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "answer.webm" {
			t.Fatalf("filename = %q", header.Filename)
		}
		_, _ = io.WriteString(w, `{"text":"I led the migration."}`)
	}))
	defer srv.Close()

	client, _ := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL})
	text, err := client.Transcribe(context.Background(), "answer.webm", []byte("RIFF"))
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "I led the migration." {
		t.Fatalf("text = %q", text)
	}
	if _, err := client.Transcribe(context.Background(), "a.wav", nil); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIOptions{APIKey: " "}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestNormalizeOpenAIModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		input  string
		model  string
		reason string
	}{
		{name: "exact_default", input: "gpt-4o-mini", model: "gpt-4o-mini", reason: ""},
		{name: "exact_4o", input: "GPT-4o", model: "gpt-4o", reason: ""},
		{name: "alias_short", input: "gpt-3.5", model: "gpt-3.5-turbo", reason: "alias"},
		{name: "alias_spaces", input: "gpt4o mini", model: "gpt-4o-mini", reason: "alias"},
		{name: "unsupported", input: "gpt-9", model: "gpt-4o-mini", reason: "defaulted"},
		{name: "empty", input: "", model: "gpt-4o-mini", reason: ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotModel, gotReason := normalizeOpenAIModel(tc.input)
			if gotModel != tc.model {
				t.Fatalf("model = %q, want %q", gotModel, tc.model)
			}
			if gotReason != tc.reason {
				t.Fatalf("reason = %q, want %q", gotReason, tc.reason)
			}
		})
	}
}

func TestNewOpenAIClientWarnsOnUnsupportedModel(t *testing.T) {
	var reason, detail string
	client, err := NewOpenAIClient(OpenAIOptions{
		APIKey: "dummy",
		Model:  "gpt-9",
		OnWarning: func(r, d string) {
			reason, detail = r, d
		},
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient returned error: %v", err)
	}
	if client.Model() != "gpt-4o-mini" {
		t.Fatalf("model = %q", client.Model())
	}
	if reason != "model_defaulted" || !strings.Contains(detail, "requested=gpt-9") {
		t.Fatalf("unexpected warning %q %q", reason, detail)
	}
}
