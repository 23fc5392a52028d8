package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"careercatalyst/internal/domain"
)

func TestCleanText(t *testing.T) {
	got := CleanText("  “Great” – it’s **bold**… ")
	want := `"Great" - it's bold...`
	if got != want {
		t.Fatalf("CleanText = %q, want %q", got, want)
	}
}

func TestBuildProducesPDF(t *testing.T) {
	out, err := Build(Input{
		Email:      "jane@example.com",
		JobSummary: "Build payment APIs in Go — remote.",
		Fit: &domain.FitScore{
			Score:       81,
			Explanation: "Strong backend match.",
			Strengths:   []string{"Go"},
			Gaps:        []string{"Kafka"},
		},
		Questions:   "1. Describe an outage you handled.\n- ownership",
		GeneratedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a pdf: %q", out[:8])
	}
}

func TestBuildSkipsUnusableFit(t *testing.T) {
	in := Input{Fit: &domain.FitScore{}}
	if got := len(in.sections()); got != 0 {
		t.Fatalf("expected no sections, got %d", got)
	}
	if _, err := Build(in); !errors.Is(err, ErrNothingToReport) {
		t.Fatalf("expected ErrNothingToReport, got %v", err)
	}
}

func TestSectionsOrder(t *testing.T) {
	in := Input{JobSummary: "job", Questions: "q", CVSummary: "cv"}
	s := in.sections()
	if len(s) != 3 || s[0].body != "job" || s[1].body != "cv" || s[2].body != "q" {
		t.Fatalf("unexpected sections %+v", s)
	}
}
