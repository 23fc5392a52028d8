package interviewer

import (
	"context"
	"strings"
	"testing"
)

func TestBriefMessage(t *testing.T) {
	msg := briefMessage(Brief{JobSummary: "Backend engineer", Questions: "1. Tell me about Go", Language: "German"})
	if !strings.HasPrefix(msg, "Conduct the interview in German.") {
		t.Fatalf("language not first: %q", msg)
	}
	if !strings.Contains(msg, "Role:\nBackend engineer") {
		t.Fatalf("missing role: %q", msg)
	}
	if strings.Contains(msg, "Candidate background") {
		t.Fatalf("empty cv summary should be omitted: %q", msg)
	}
}

func TestBriefMessageDefaultsToEnglish(t *testing.T) {
	if msg := briefMessage(Brief{}); !strings.Contains(msg, "in English.") {
		t.Fatalf("expected English default, got %q", msg)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestReplyWithoutStart(t *testing.T) {
	a := &Agent{active: map[string]string{}}
	if _, err := a.Reply(context.Background(), "u1", "answer"); err != ErrNoInterview {
		t.Fatalf("expected ErrNoInterview, got %v", err)
	}
}
