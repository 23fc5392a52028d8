package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"careercatalyst/internal/coach"
	"careercatalyst/internal/document"
	"careercatalyst/internal/domain"
	"careercatalyst/internal/ledger"
	"careercatalyst/internal/middleware"
	"careercatalyst/internal/report"
	"careercatalyst/internal/storage"
	"careercatalyst/internal/workflow"
)

// Audio answers share the upload bound with CVs.
const maxAudioBytes = document.MaxUploadBytes

type moduleResponse struct {
	Result    any              `json:"result"`
	Remaining ledger.Remaining `json:"remaining"`
	Session   workflow.Session `json:"session"`
}

type jobRequest struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

type practiceRequest struct {
	Answer string `json:"answer"`
}

// runModule meters action as one run of module and stores the outcome on
// the session through save. A result that could not be recorded is kept on
// the session but still reported as a failure.
func runModule[T any](a *App, w http.ResponseWriter, r *http.Request, sess workflow.Session, module domain.Module,
	action func(context.Context) (T, error), save func(workflow.Session, T) workflow.Session) {
	produced := false
	res, err := workflow.Execute(r.Context(), a.Ledger, sess.UserID, module, func(ctx context.Context) (T, error) {
		v, err := action(ctx)
		produced = err == nil
		return v, err
	})
	if err != nil {
		if produced && errors.Is(err, domain.ErrStoreWriteFailed) {
			a.Sessions.Put(save(sess, res))
		}
		a.fail(w, r, err)
		return
	}
	sess = save(sess, res)
	a.Sessions.Put(sess)
	a.publish(r.Context(), domain.Event{
		Type:      domain.EventModuleCompleted,
		UserID:    sess.UserID,
		Module:    module,
		Timestamp: time.Now().UTC(),
	})
	a.writeModule(w, r, sess, module, res)
}

func (a *App) writeModule(w http.ResponseWriter, r *http.Request, sess workflow.Session, module domain.Module, result any) {
	rem, err := a.Ledger.RemainingRuns(r.Context(), sess.UserID, module)
	if err != nil {
		a.Logger.Warn().Err(err).Str("user_id", sess.UserID).Msg("load remaining runs failed")
	}
	a.json(w, http.StatusOK, moduleResponse{Result: result, Remaining: rem, Session: sess})
}

// requireStage rejects modules whose earlier artefacts are missing.
func requireStage(sess workflow.Session, st workflow.Stage) error {
	if !sess.Reachable(st) {
		return fmt.Errorf("%w: %s", workflow.ErrStageLocked, st)
	}
	return nil
}

func (a *App) ModuleCV(w http.ResponseWriter, r *http.Request) {
	if !a.parseUpload(w, r, document.MaxUploadBytes) {
		return
	}
	file, header, err := r.FormFile("cv")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "cv file required")
		return
	}
	defer file.Close()
	data, err := readPart(file, document.MaxUploadBytes)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	text, err := document.ExtractText(document.DetectMIME(header.Filename, header.Header.Get("Content-Type")), data)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	sess := a.session(r)
	a.keepUpload(r.Context(), sess.UserID, header.Filename, data)
	runModule(a, w, r, sess, domain.ModuleCVAnalysis,
		func(ctx context.Context) (string, error) {
			return a.Coach.AnalyzeCV(ctx, text, sess.Language)
		},
		func(s workflow.Session, summary string) workflow.Session {
			return s.WithCV(header.Filename, text, summary)
		})
}

func (a *App) ModuleJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	text := document.Normalize(req.Text)
	if text == "" && req.URL == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "url or text required")
		return
	}
	if text == "" {
		if a.Scraper == nil {
			a.error(w, http.StatusServiceUnavailable, "scraper_unavailable", "paste the job description instead")
			return
		}
		scraped, err := a.Scraper.Fetch(r.Context(), req.URL)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		text = scraped
	}

	sess := a.session(r)
	runModule(a, w, r, sess, domain.ModuleJobAnalysis,
		func(ctx context.Context) (string, error) {
			return a.Coach.AnalyzeJob(ctx, text, sess.Language)
		},
		func(s workflow.Session, summary string) workflow.Session {
			return s.WithJob(req.URL, text, summary)
		})
}

func (a *App) ModuleFit(w http.ResponseWriter, r *http.Request) {
	sess := a.session(r)
	if err := requireStage(sess, workflow.StageFitAnalysis); err != nil {
		a.fail(w, r, err)
		return
	}
	art := sess.Artefacts
	runModule(a, w, r, sess, domain.ModuleFitAnalysis,
		func(ctx context.Context) (domain.FitScore, error) {
			return a.Coach.ScoreFit(ctx, art.CVSummary, art.JobSummary, sess.Language)
		},
		workflow.Session.WithFit)
}

func (a *App) ModuleCVImprovement(w http.ResponseWriter, r *http.Request) {
	sess := a.session(r)
	if err := requireStage(sess, workflow.StageCVImprovement); err != nil {
		a.fail(w, r, err)
		return
	}
	art := sess.Artefacts
	runModule(a, w, r, sess, domain.ModuleCVImprovement,
		func(ctx context.Context) (string, error) {
			return a.Coach.ImproveCV(ctx, art.CVText, art.JobSummary, art.Fit, sess.Language)
		},
		workflow.Session.WithSuggestions)
}

func (a *App) ModuleQuestions(w http.ResponseWriter, r *http.Request) {
	sess := a.session(r)
	if err := requireStage(sess, workflow.StageInterviewQuestions); err != nil {
		a.fail(w, r, err)
		return
	}
	art := sess.Artefacts
	runModule(a, w, r, sess, domain.ModuleInterviewQuestions,
		func(ctx context.Context) (string, error) {
			return a.Coach.InterviewQuestions(ctx, art.CVSummary, art.JobSummary, sess.Language)
		},
		workflow.Session.WithQuestions)
}

// QuestionsReport renders the interview preparation PDF, keeps a copy in
// object storage and streams it back.
func (a *App) QuestionsReport(w http.ResponseWriter, r *http.Request) {
	sess := a.session(r)
	art := sess.Artefacts
	if art.Questions == "" {
		a.error(w, http.StatusConflict, "stage_locked", "generate interview questions first")
		return
	}
	pdf, err := report.Build(report.Input{
		Email:       middleware.EmailFromContext(r.Context()),
		JobSummary:  art.JobSummary,
		CVSummary:   art.CVSummary,
		Fit:         art.Fit,
		Suggestions: art.Suggestions,
		Questions:   art.Questions,
		GeneratedAt: time.Now().UTC(),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if a.Storage != nil {
		key := storage.ReportKey(sess.UserID)
		if _, err := a.Storage.Write(r.Context(), key, pdf); err != nil {
			a.Logger.Warn().Err(err).Str("user_id", sess.UserID).Msg("store report failed")
		} else {
			w.Header().Set("X-Report-Key", key)
		}
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="interview-prep.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// ModulePractice runs one mock interview turn. Opening the interview is
// free; every answered turn is one run.
func (a *App) ModulePractice(w http.ResponseWriter, r *http.Request) {
	in := coach.PracticeInput{}
	if isJSON(r) {
		var req practiceRequest
		if !a.decode(w, r, &req) {
			return
		}
		in.Answer = req.Answer
	} else {
		if !a.parseUpload(w, r, maxAudioBytes) {
			return
		}
		in.Answer = r.FormValue("answer")
		if file, header, err := r.FormFile("audio"); err == nil {
			defer file.Close()
			data, err := readPart(file, maxAudioBytes)
			if err != nil {
				a.fail(w, r, err)
				return
			}
			in.Audio, in.AudioName = data, header.Filename
		}
	}

	sess := a.session(r)
	if err := requireStage(sess, workflow.StagePracticeInterview); err != nil {
		a.fail(w, r, err)
		return
	}
	art := sess.Artefacts
	in.UserID = sess.UserID
	in.CVSummary = art.CVSummary
	in.JobSummary = art.JobSummary
	in.Questions = art.Questions
	in.Language = sess.Language
	in.History = art.Practice

	if strings.TrimSpace(in.Answer) == "" && len(in.Audio) == 0 {
		a.openInterview(w, r, sess, in)
		return
	}
	runModule(a, w, r, sess, domain.ModulePracticeInterview,
		func(ctx context.Context) (domain.PracticeTurn, error) {
			return a.Coach.Practice(ctx, in)
		},
		workflow.Session.WithPracticeTurn)
}

func (a *App) openInterview(w http.ResponseWriter, r *http.Request, sess workflow.Session, in coach.PracticeInput) {
	ok, err := a.Ledger.IsModuleAllowed(r.Context(), sess.UserID, domain.ModulePracticeInterview)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ok {
		a.fail(w, r, domain.ErrQuotaExceeded)
		return
	}
	turn, err := a.Coach.Practice(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sess = sess.WithPracticeTurn(turn)
	a.Sessions.Put(sess)
	a.writeModule(w, r, sess, domain.ModulePracticeInterview, turn)
}

// keepUpload archives the original CV file. Failures only cost the archive.
func (a *App) keepUpload(ctx context.Context, userID, fileName string, data []byte) {
	if a.Storage == nil {
		return
	}
	if _, err := a.Storage.Write(ctx, storage.CVKey(userID, fileName), data); err != nil {
		a.Logger.Warn().Err(err).Str("user_id", userID).Msg("archive cv failed")
	}
}

func (a *App) parseUpload(w http.ResponseWriter, r *http.Request, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	err := r.ParseMultipartForm(limit)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		a.fail(w, r, document.ErrTooLarge)
	} else {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart form expected")
	}
	return false
}

func readPart(file multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, document.ErrTooLarge
	}
	return data, nil
}
