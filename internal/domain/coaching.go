package domain

import "time"

// FitScore is the structured result of the fit analysis module.
type FitScore struct {
	Score       int      `json:"score"`
	Explanation string   `json:"explanation"`
	Strengths   []string `json:"strengths"`
	Gaps        []string `json:"gaps"`
}

// PracticeTurn is one exchange in the mock interview.
type PracticeTurn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Feedback string    `json:"feedback"`
	At       time.Time `json:"at"`
}

// Usable reports whether the score is inside the 1..100 range.
func (f FitScore) Usable() bool {
	return f.Score >= 1 && f.Score <= 100
}

// Usable reports whether the interviewer said anything.
func (t PracticeTurn) Usable() bool {
	return t.Question != "" || t.Feedback != ""
}
