// Package interviewer runs the multi-turn mock interview on an agent that
// keeps the conversation per user.
package interviewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const (
	agentName    = "practice_interviewer"
	defaultModel = "gemini-2.5-flash"
)

// ErrNoInterview is returned when a user answers before starting.
var ErrNoInterview = errors.New("no practice interview in progress")

type Options struct {
	APIKey string
	Model  string
	Logger *zerolog.Logger
}

// Brief is what the interviewer knows before the first question.
type Brief struct {
	JobSummary string
	CVSummary  string
	Questions  string
	Language   string
}

// Agent keeps one agent session per user.
type Agent struct {
	runner   *runner.Runner
	sessions session.Service
	logger   zerolog.Logger

	mu     sync.Mutex
	active map[string]string
}

func New(ctx context.Context, opts Options) (*Agent, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("interviewer: gemini api key is required")
	}
	modelName := strings.TrimSpace(opts.Model)
	if modelName == "" {
		modelName = defaultModel
	}
	model, err := gemini.NewModel(ctx, modelName, &genai.ClientConfig{
		APIKey: opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("interviewer: create model: %w", err)
	}
	interviewer, err := llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       model,
		Description: "Runs a realistic mock job interview",
		Instruction: instruction,
	})
	if err != nil {
		return nil, fmt.Errorf("interviewer: create agent: %w", err)
	}
	sessions := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        interviewer.Name(),
		Agent:          interviewer,
		SessionService: sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("interviewer: create runner: %w", err)
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Agent{runner: r, sessions: sessions, logger: logger, active: map[string]string{}}, nil
}

// Start opens a fresh interview for userID and returns the first question.
// Any earlier interview of the same user is discarded.
func (a *Agent) Start(ctx context.Context, userID string, brief Brief) (string, error) {
	a.End(ctx, userID)
	created, err := a.sessions.Create(ctx, &session.CreateRequest{
		AppName:   agentName,
		UserID:    userID,
		SessionID: uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("interviewer: create session: %w", err)
	}
	sessionID := created.Session.ID()
	a.mu.Lock()
	a.active[userID] = sessionID
	a.mu.Unlock()

	return a.send(ctx, userID, sessionID, briefMessage(brief))
}

// Reply sends the candidate's answer and returns feedback with the next question.
func (a *Agent) Reply(ctx context.Context, userID, answer string) (string, error) {
	a.mu.Lock()
	sessionID, ok := a.active[userID]
	a.mu.Unlock()
	if !ok {
		return "", ErrNoInterview
	}
	return a.send(ctx, userID, sessionID, "Candidate answer:\n"+strings.TrimSpace(answer))
}

// End drops the user's interview, if any.
func (a *Agent) End(ctx context.Context, userID string) {
	a.mu.Lock()
	sessionID, ok := a.active[userID]
	delete(a.active, userID)
	a.mu.Unlock()
	if !ok {
		return
	}
	err := a.sessions.Delete(ctx, &session.DeleteRequest{
		AppName:   agentName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("user_id", userID).Msg("interviewer: delete session")
	}
}

func (a *Agent) send(ctx context.Context, userID, sessionID, text string) (string, error) {
	stream := a.runner.Run(ctx, userID, sessionID, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: text}},
	}, agent.RunConfig{})

	var output string
	for event, err := range stream {
		if err != nil {
			return "", fmt.Errorf("interviewer: run: %w", err)
		}
		if event != nil && event.IsFinalResponse() && event.Content != nil && len(event.Content.Parts) > 0 {
			output = event.Content.Parts[0].Text
		}
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return "", errors.New("interviewer: empty agent response")
	}
	return output, nil
}

const instruction = `You are a professional interviewer running a practice interview.
Ask exactly one question per turn, drawn from the role and the prepared questions.
After each candidate answer give two or three sentences of concrete feedback
(structure, relevance, evidence), then ask the next question.
Stay in the language you are told to use. Never answer on the candidate's behalf.`

func briefMessage(b Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conduct the interview in %s.\n\n", coalesce(b.Language, "English"))
	if b.JobSummary != "" {
		fmt.Fprintf(&sb, "Role:\n%s\n\n", b.JobSummary)
	}
	if b.CVSummary != "" {
		fmt.Fprintf(&sb, "Candidate background:\n%s\n\n", b.CVSummary)
	}
	if b.Questions != "" {
		fmt.Fprintf(&sb, "Prepared questions:\n%s\n\n", b.Questions)
	}
	sb.WriteString("Greet the candidate briefly and ask the first question.")
	return sb.String()
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
