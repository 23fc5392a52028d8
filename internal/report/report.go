// Package report renders the interview preparation PDF.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"careercatalyst/internal/domain"
)

var (
	colorTitle    = [3]int{44, 62, 80}
	colorJob      = [3]int{41, 128, 185}
	colorFit      = [3]int{39, 174, 96}
	colorQuestion = [3]int{142, 68, 173}
	colorCV       = [3]int{211, 84, 0}
	colorMuted    = [3]int{127, 140, 141}
)

const (
	bodyFont   = "Arial"
	lineHeight = 8.0
)

// ErrNothingToReport is returned when no section has content.
var ErrNothingToReport = errors.New("report has no content")

// Input is the material collected during a coaching session.
type Input struct {
	Email       string
	JobSummary  string
	CVSummary   string
	Fit         *domain.FitScore
	Suggestions string
	Questions   string
	GeneratedAt time.Time
}

type section struct {
	title string
	color [3]int
	body  string
}

func (in Input) sections() []section {
	var out []section
	add := func(title string, color [3]int, body string) {
		if strings.TrimSpace(body) != "" {
			out = append(out, section{title: title, color: color, body: body})
		}
	}
	add("Job Needs (Refined Job Summary):", colorJob, in.JobSummary)
	add("Candidate Profile:", colorCV, in.CVSummary)
	if in.Fit != nil && in.Fit.Usable() {
		var sb strings.Builder
		sb.WriteString(strconv.Itoa(in.Fit.Score) + "/100\n")
		sb.WriteString(in.Fit.Explanation)
		if len(in.Fit.Strengths) > 0 {
			sb.WriteString("\n\nStrengths:\n- " + strings.Join(in.Fit.Strengths, "\n- "))
		}
		if len(in.Fit.Gaps) > 0 {
			sb.WriteString("\n\nGaps:\n- " + strings.Join(in.Fit.Gaps, "\n- "))
		}
		add("Candidate Fit Score:", colorFit, sb.String())
	}
	add("CV Improvement Suggestions:", colorCV, in.Suggestions)
	add("Interview Questions & Guidance:", colorQuestion, in.Questions)
	return out
}

// Build renders the report as a PDF document.
func Build(in Input) ([]byte, error) {
	sections := in.sections()
	if len(sections) == 0 {
		return nil, ErrNothingToReport
	}
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now().UTC()
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle("Interview Preparation Document", true)
	pdf.SetCreator("Career Catalyst", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont(bodyFont, "B", 16)
	setColor(pdf, colorTitle)
	pdf.CellFormat(0, 10, "Interview Preparation Document", "", 1, "C", false, 0, "")
	pdf.SetFont(bodyFont, "", 9)
	setColor(pdf, colorMuted)
	meta := in.GeneratedAt.Format("2 January 2006")
	if in.Email != "" {
		meta = in.Email + " - " + meta
	}
	pdf.CellFormat(0, 6, tr(CleanText(meta)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for _, s := range sections {
		pdf.SetFont(bodyFont, "B", 12)
		setColor(pdf, s.color)
		pdf.CellFormat(0, 10, tr(s.title), "", 1, "L", false, 0, "")
		pdf.SetFont(bodyFont, "", 11)
		setColor(pdf, [3]int{0, 0, 0})
		pdf.MultiCell(0, lineHeight, tr(CleanText(s.body)), "", "L", false)
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: pdf output: %w", err)
	}
	return buf.Bytes(), nil
}

func setColor(pdf *fpdf.Fpdf, c [3]int) {
	pdf.SetTextColor(c[0], c[1], c[2])
}

var replacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
	"…", "...",
	"•", "-",
	"\u00a0", " ",
	"**", "",
	"\r\n", "\n",
)

// CleanText maps typographic punctuation to ASCII and drops markdown
// emphasis so the core fonts can render the text.
func CleanText(s string) string {
	return strings.TrimSpace(replacer.Replace(s))
}
