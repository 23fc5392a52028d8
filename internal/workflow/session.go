// Package workflow holds the per-user journey through the six coaching
// modules and the gate, act, record composition that meters each run.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"careercatalyst/internal/domain"
)

// Stage tags the page a session is on.
type Stage string

const (
	StageLanding            Stage = "landing"
	StageCVAnalysis         Stage = "cv_analysis"
	StageJobAnalysis        Stage = "job_analysis"
	StageFitAnalysis        Stage = "fit_analysis"
	StageCVImprovement      Stage = "cv_improvement"
	StageInterviewQuestions Stage = "interview_questions"
	StagePracticeInterview  Stage = "practice_interview"
	StageSettings           Stage = "settings"
	StageLegal              Stage = "legal"
)

var (
	ErrUnknownStage = errors.New("unknown stage")
	ErrStageLocked  = errors.New("stage not reached yet")
	ErrEndOfFlow    = errors.New("no further stage")
	ErrStartOfFlow  = errors.New("no previous stage")
)

// flow is the linear order of the journey.
var flow = []Stage{
	StageLanding,
	StageCVAnalysis,
	StageJobAnalysis,
	StageFitAnalysis,
	StageCVImprovement,
	StageInterviewQuestions,
	StagePracticeInterview,
}

var stageModules = map[Stage]domain.Module{
	StageCVAnalysis:         domain.ModuleCVAnalysis,
	StageJobAnalysis:        domain.ModuleJobAnalysis,
	StageFitAnalysis:        domain.ModuleFitAnalysis,
	StageCVImprovement:      domain.ModuleCVImprovement,
	StageInterviewQuestions: domain.ModuleInterviewQuestions,
	StagePracticeInterview:  domain.ModulePracticeInterview,
}

// ParseStage validates a stage name received from a client.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if s == StageSettings || s == StageLegal || flowIndex(s) >= 0 {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, raw)
}

// Module returns the metered module behind a stage.
func (s Stage) Module() (domain.Module, bool) {
	m, ok := stageModules[s]
	return m, ok
}

// StageFor maps a module back to its stage.
func StageFor(m domain.Module) Stage {
	for s, mod := range stageModules {
		if mod == m {
			return s
		}
	}
	return StageLanding
}

func flowIndex(s Stage) int {
	for i, st := range flow {
		if st == s {
			return i
		}
	}
	return -1
}

// Artefacts are the results produced so far.
type Artefacts struct {
	CVFileName  string                `json:"cv_file_name,omitempty"`
	CVText      string                `json:"-"`
	CVSummary   string                `json:"cv_summary,omitempty"`
	JobURL      string                `json:"job_url,omitempty"`
	JobText     string                `json:"-"`
	JobSummary  string                `json:"job_summary,omitempty"`
	Fit         *domain.FitScore      `json:"fit,omitempty"`
	Suggestions string                `json:"suggestions,omitempty"`
	Questions   string                `json:"questions,omitempty"`
	Practice    []domain.PracticeTurn `json:"practice,omitempty"`
}

// Session is an immutable snapshot of one user's journey. Every transition
// returns a new value.
type Session struct {
	UserID    string    `json:"-"`
	Stage     Stage     `json:"stage"`
	Return    Stage     `json:"return_to,omitempty"`
	Language  string    `json:"language"`
	Artefacts Artefacts `json:"artefacts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession starts a journey on the landing page.
func NewSession(userID, language string) Session {
	if language == "" {
		language = DefaultLanguage
	}
	return Session{UserID: userID, Stage: StageLanding, Language: language, UpdatedAt: time.Now().UTC()}
}

// DefaultLanguage is the BCP 47 tag used when none was chosen.
const DefaultLanguage = "en"

// completed reports whether the stage produced the artefact the next stage needs.
func (s Session) completed(st Stage) bool {
	a := s.Artefacts
	switch st {
	case StageLanding:
		return true
	case StageCVAnalysis:
		return a.CVSummary != ""
	case StageJobAnalysis:
		return a.JobSummary != ""
	case StageFitAnalysis:
		return a.Fit != nil
	case StageCVImprovement:
		return a.Suggestions != ""
	case StageInterviewQuestions:
		return a.Questions != ""
	}
	return false
}

// Reachable reports whether every stage before st is complete.
func (s Session) Reachable(st Stage) bool {
	if st == StageSettings || st == StageLegal {
		return true
	}
	idx := flowIndex(st)
	if idx < 0 {
		return false
	}
	for _, prev := range flow[:idx] {
		if !s.completed(prev) {
			return false
		}
	}
	return true
}

// Next advances one stage when the current stage is complete.
func (s Session) Next() (Session, error) {
	if s.Stage == StageSettings || s.Stage == StageLegal {
		return s.Back()
	}
	idx := flowIndex(s.Stage)
	if idx < 0 {
		return s, fmt.Errorf("%w: %q", ErrUnknownStage, s.Stage)
	}
	if idx == len(flow)-1 {
		return s, ErrEndOfFlow
	}
	if !s.completed(s.Stage) {
		return s, fmt.Errorf("%w: finish %s first", ErrStageLocked, s.Stage)
	}
	return s.at(flow[idx+1]), nil
}

// Back returns to the previous stage, or leaves settings and legal pages.
func (s Session) Back() (Session, error) {
	if s.Stage == StageSettings || s.Stage == StageLegal {
		ret := s.Return
		if ret == "" {
			ret = StageLanding
		}
		out := s.at(ret)
		out.Return = ""
		return out, nil
	}
	idx := flowIndex(s.Stage)
	if idx < 0 {
		return s, fmt.Errorf("%w: %q", ErrUnknownStage, s.Stage)
	}
	if idx == 0 {
		return s, ErrStartOfFlow
	}
	return s.at(flow[idx-1]), nil
}

// Goto jumps to any reachable stage. Settings and legal remember where to
// return to.
func (s Session) Goto(st Stage) (Session, error) {
	if _, err := ParseStage(string(st)); err != nil {
		return s, err
	}
	if !s.Reachable(st) {
		return s, fmt.Errorf("%w: %s", ErrStageLocked, st)
	}
	if st == StageSettings || st == StageLegal {
		out := s.at(st)
		if s.Stage != StageSettings && s.Stage != StageLegal {
			out.Return = s.Stage
		}
		return out, nil
	}
	out := s.at(st)
	out.Return = ""
	return out, nil
}

// Reset clears every artefact and returns to the landing page. The chosen
// language is kept.
func (s Session) Reset() Session {
	return NewSession(s.UserID, s.Language)
}

// WithLanguage records the output language for generated text.
func (s Session) WithLanguage(tag string) Session {
	out := s.clone()
	out.Language = tag
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithCV stores a new CV and its summary. Artefacts derived from the old CV
// are dropped.
func (s Session) WithCV(fileName, text, summary string) Session {
	out := s.clone()
	out.Artefacts.CVFileName = fileName
	out.Artefacts.CVText = text
	out.Artefacts.CVSummary = summary
	out.Artefacts.Fit = nil
	out.Artefacts.Suggestions = ""
	out.Artefacts.Questions = ""
	out.Artefacts.Practice = nil
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithJob stores the job posting and its summary, dropping derived artefacts.
func (s Session) WithJob(url, text, summary string) Session {
	out := s.clone()
	out.Artefacts.JobURL = url
	out.Artefacts.JobText = text
	out.Artefacts.JobSummary = summary
	out.Artefacts.Fit = nil
	out.Artefacts.Suggestions = ""
	out.Artefacts.Questions = ""
	out.Artefacts.Practice = nil
	out.UpdatedAt = time.Now().UTC()
	return out
}

func (s Session) WithFit(fit domain.FitScore) Session {
	out := s.clone()
	out.Artefacts.Fit = &fit
	out.UpdatedAt = time.Now().UTC()
	return out
}

func (s Session) WithSuggestions(text string) Session {
	out := s.clone()
	out.Artefacts.Suggestions = text
	out.UpdatedAt = time.Now().UTC()
	return out
}

func (s Session) WithQuestions(text string) Session {
	out := s.clone()
	out.Artefacts.Questions = text
	out.Artefacts.Practice = nil
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithPracticeTurn appends one answered interview turn.
func (s Session) WithPracticeTurn(turn domain.PracticeTurn) Session {
	out := s.clone()
	out.Artefacts.Practice = append(out.Artefacts.Practice, turn)
	out.UpdatedAt = time.Now().UTC()
	return out
}

func (s Session) at(st Stage) Session {
	out := s.clone()
	out.Stage = st
	out.UpdatedAt = time.Now().UTC()
	return out
}

func (s Session) clone() Session {
	out := s
	if s.Artefacts.Fit != nil {
		fit := *s.Artefacts.Fit
		fit.Strengths = append([]string(nil), fit.Strengths...)
		fit.Gaps = append([]string(nil), fit.Gaps...)
		out.Artefacts.Fit = &fit
	}
	if s.Artefacts.Practice != nil {
		out.Artefacts.Practice = append([]domain.PracticeTurn(nil), s.Artefacts.Practice...)
	}
	return out
}
