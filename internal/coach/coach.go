// Package coach builds the prompts of the six coaching modules and turns
// model replies into session artefacts.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"careercatalyst/internal/domain"
	"careercatalyst/internal/providers/interviewer"
	"careercatalyst/internal/providers/llm"
)

// DefaultInputTokens caps each pasted document before it is sent.
const DefaultInputTokens = 3000

const (
	summaryTemperature = 0.7
	scoreTemperature   = 0.2
)

// LLM is the completion surface the coach needs.
type LLM interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	CompleteStructured(ctx context.Context, req llm.Request, out any) error
}

// Interviewer runs a stateful practice interview.
type Interviewer interface {
	Start(ctx context.Context, userID string, brief interviewer.Brief) (string, error)
	Reply(ctx context.Context, userID, answer string) (string, error)
}

type Options struct {
	LLM         LLM
	Interviewer Interviewer
	Transcriber llm.Transcriber
	InputTokens int
	Logger      *zerolog.Logger
}

type Coach struct {
	llm         LLM
	interviewer Interviewer
	transcriber llm.Transcriber
	inputTokens int
	logger      zerolog.Logger
}

func New(opts Options) (*Coach, error) {
	if opts.LLM == nil {
		return nil, errors.New("coach: llm is required")
	}
	tokens := opts.InputTokens
	if tokens <= 0 {
		tokens = DefaultInputTokens
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Coach{
		llm:         opts.LLM,
		interviewer: opts.Interviewer,
		transcriber: opts.Transcriber,
		inputTokens: tokens,
		logger:      logger,
	}, nil
}

const systemPrompt = "You are a helpful interview assistant. Please be concise."

// AnalyzeCV summarises the candidate's strengths and weaknesses.
func (c *Coach) AnalyzeCV(ctx context.Context, cvText, lang string) (string, error) {
	cvText = strings.TrimSpace(cvText)
	if cvText == "" {
		return "", fmt.Errorf("coach: %w: cv text", domain.ErrEmptyResult)
	}
	prompt := "Based on the following candidate CV, provide a concise summary highlighting the candidate's " +
		"top strengths and weaknesses. List them as bullet points." + languageLine(lang) +
		"\n\nCandidate CV:\n" + llm.Truncate(cvText, c.inputTokens)
	return c.text(ctx, prompt)
}

// AnalyzeJob condenses a job posting into responsibilities and requirements.
func (c *Coach) AnalyzeJob(ctx context.Context, jobText, lang string) (string, error) {
	jobText = strings.TrimSpace(jobText)
	if jobText == "" {
		return "", fmt.Errorf("coach: %w: job description", domain.ErrEmptyResult)
	}
	prompt := "Based on the following job description, provide a concise summary (no more than 2 paragraphs) " +
		"highlighting the key responsibilities, requirements and skills needed for the role. " +
		"List them as bullet points." + languageLine(lang) +
		"\n\nJob Description:\n" + llm.Truncate(jobText, c.inputTokens)
	return c.text(ctx, prompt)
}

const fitSchema = `{"score": integer 1-100, "explanation": string, "strengths": string[], "gaps": string[]}`

// ScoreFit rates how well the CV matches the job.
func (c *Coach) ScoreFit(ctx context.Context, cvSummary, jobSummary, lang string) (domain.FitScore, error) {
	prompt := "Based on the following CV summary and job summary, provide a candidate fit score (1 to 100) " +
		"with a brief explanation (max 1 paragraph), the strengths that match and the gaps to address." +
		languageLine(lang) +
		"\n\nCV Summary:\n" + cvSummary + "\n\nJob Summary:\n" + jobSummary
	var fit domain.FitScore
	err := c.llm.CompleteStructured(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: scoreTemperature,
		Schema:      fitSchema,
	}, &fit)
	if err != nil {
		return domain.FitScore{}, err
	}
	fit.Explanation = strings.TrimSpace(fit.Explanation)
	fit.Strengths = compact(fit.Strengths)
	fit.Gaps = compact(fit.Gaps)
	if !fit.Usable() {
		return domain.FitScore{}, fmt.Errorf("coach: fit score %d out of range: %w", fit.Score, domain.ErrProviderFailure)
	}
	return fit, nil
}

// ImproveCV suggests concrete CV edits for the target role.
func (c *Coach) ImproveCV(ctx context.Context, cvText, jobSummary string, fit *domain.FitScore, lang string) (string, error) {
	var gaps string
	if fit != nil && len(fit.Gaps) > 0 {
		gaps = "\n\nKnown gaps:\n- " + strings.Join(fit.Gaps, "\n- ")
	}
	prompt := "Suggest specific improvements to the candidate CV so that it better matches the job. " +
		"Group suggestions by CV section and rewrite weak bullet points. Do not invent experience." +
		languageLine(lang) +
		"\n\nJob Summary:\n" + jobSummary + gaps +
		"\n\nCandidate CV:\n" + llm.Truncate(cvText, c.inputTokens)
	return c.text(ctx, prompt)
}

// InterviewQuestions lists questions with short guidance per question.
func (c *Coach) InterviewQuestions(ctx context.Context, cvSummary, jobSummary, lang string) (string, error) {
	prompt := "Based on the following concise CV summary and job summary, generate a list of interview questions " +
		"that assess the candidate's fit for the role. For each question, provide concise guidance in bullet points " +
		"indicating the key qualities or skills to emphasize in the answer. Do not include extra commentary." +
		languageLine(lang) +
		"\n\nCV Summary:\n" + cvSummary + "\n\nJob Summary:\n" + jobSummary
	return c.text(ctx, prompt)
}

// PracticeInput is one practice interview turn. An empty Answer with no
// Audio opens the interview.
type PracticeInput struct {
	UserID     string
	Answer     string
	Audio      []byte
	AudioName  string
	CVSummary  string
	JobSummary string
	Questions  string
	Language   string
	History    []domain.PracticeTurn
}

// Practice runs one interview turn. The returned turn carries the answer as
// understood (transcribed when audio was sent) and the interviewer reply.
func (c *Coach) Practice(ctx context.Context, in PracticeInput) (domain.PracticeTurn, error) {
	answer := strings.TrimSpace(in.Answer)
	if answer == "" && len(in.Audio) > 0 {
		if c.transcriber == nil {
			return domain.PracticeTurn{}, errors.New("coach: audio answers are not supported")
		}
		text, err := c.transcriber.Transcribe(ctx, in.AudioName, in.Audio)
		if err != nil {
			return domain.PracticeTurn{}, fmt.Errorf("coach: transcribe: %w: %w", domain.ErrProviderFailure, err)
		}
		answer = text
	}

	var (
		reply string
		err   error
	)
	if c.interviewer != nil {
		reply, err = c.practiceWithAgent(ctx, in, answer)
	} else {
		reply, err = c.practiceWithLLM(ctx, in, answer)
	}
	if err != nil {
		return domain.PracticeTurn{}, err
	}
	turn := domain.PracticeTurn{Answer: answer, At: time.Now().UTC()}
	if answer == "" {
		turn.Question = reply
	} else {
		turn.Feedback = reply
	}
	return turn, nil
}

func (c *Coach) practiceWithAgent(ctx context.Context, in PracticeInput, answer string) (string, error) {
	if answer == "" {
		reply, err := c.interviewer.Start(ctx, in.UserID, interviewer.Brief{
			JobSummary: in.JobSummary,
			CVSummary:  in.CVSummary,
			Questions:  in.Questions,
			Language:   LanguageName(in.Language),
		})
		if err != nil {
			return "", fmt.Errorf("coach: start interview: %w: %w", domain.ErrProviderFailure, err)
		}
		return reply, nil
	}
	reply, err := c.interviewer.Reply(ctx, in.UserID, answer)
	if errors.Is(err, interviewer.ErrNoInterview) {
		c.logger.Debug().Str("user_id", in.UserID).Msg("coach: interview lost, continuing without agent memory")
		return c.practiceWithLLM(ctx, in, answer)
	}
	if err != nil {
		return "", fmt.Errorf("coach: interview reply: %w: %w", domain.ErrProviderFailure, err)
	}
	return reply, nil
}

func (c *Coach) practiceWithLLM(ctx context.Context, in PracticeInput, answer string) (string, error) {
	var sb strings.Builder
	sb.WriteString("You are running a practice job interview. Ask one question per turn. ")
	sb.WriteString("After a candidate answer give two or three sentences of concrete feedback, then ask the next question.")
	sb.WriteString(languageLine(in.Language))
	fmt.Fprintf(&sb, "\n\nRole:\n%s\n\nPrepared questions:\n%s\n", in.JobSummary, in.Questions)
	for _, t := range in.History {
		if t.Question != "" {
			fmt.Fprintf(&sb, "\nInterviewer: %s", t.Question)
		}
		if t.Answer != "" {
			fmt.Fprintf(&sb, "\nCandidate: %s", t.Answer)
		}
		if t.Feedback != "" {
			fmt.Fprintf(&sb, "\nInterviewer: %s", t.Feedback)
		}
	}
	if answer == "" {
		sb.WriteString("\n\nGreet the candidate briefly and ask the first question.")
	} else {
		fmt.Fprintf(&sb, "\nCandidate: %s\n\nRespond as the interviewer.", answer)
	}
	return c.text(ctx, sb.String())
}

func (c *Coach) text(ctx context.Context, prompt string) (string, error) {
	out, err := c.llm.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func languageLine(tag string) string {
	return " Write the response in " + LanguageName(tag) + "."
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
