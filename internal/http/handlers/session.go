package handlers

import (
	"net/http"

	"careercatalyst/internal/coach"
	"careercatalyst/internal/domain"
	"careercatalyst/internal/ledger"
	"careercatalyst/internal/middleware"
	"careercatalyst/internal/workflow"
)

type sessionView struct {
	workflow.Session
	Remaining map[domain.Module]ledger.Remaining `json:"remaining,omitempty"`
}

type gotoRequest struct {
	Stage string `json:"stage"`
}

type languageRequest struct {
	Language string `json:"language"`
}

// session loads the caller's workflow session, starting one in the request
// locale when none is cached.
func (a *App) session(r *http.Request) workflow.Session {
	userID := a.currentUserID(r)
	return a.Sessions.Get(userID, coach.MatchLanguage(middleware.LocaleFromContext(r.Context())).String())
}

func (a *App) writeWorkflow(w http.ResponseWriter, r *http.Request, sess workflow.Session) {
	view := sessionView{Session: sess}
	if rem, err := a.Ledger.RemainingAll(r.Context(), sess.UserID); err == nil {
		view.Remaining = rem
	} else {
		a.Logger.Warn().Err(err).Str("user_id", sess.UserID).Msg("load remaining runs failed")
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) SessionGet(w http.ResponseWriter, r *http.Request) {
	a.writeWorkflow(w, r, a.session(r))
}

func (a *App) SessionNext(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, workflow.Session.Next)
}

func (a *App) SessionBack(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, workflow.Session.Back)
}

func (a *App) SessionReset(w http.ResponseWriter, r *http.Request) {
	sess := a.session(r).Reset()
	a.Sessions.Put(sess)
	a.writeWorkflow(w, r, sess)
}

func (a *App) SessionGoto(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.transition(w, r, func(s workflow.Session) (workflow.Session, error) {
		return s.Goto(workflow.Stage(req.Stage))
	})
}

func (a *App) SessionLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Language == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "language required")
		return
	}
	sess := a.session(r).WithLanguage(coach.MatchLanguage(req.Language).String())
	a.Sessions.Put(sess)
	a.writeWorkflow(w, r, sess)
}

func (a *App) Languages(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": coach.Languages()})
}

func (a *App) transition(w http.ResponseWriter, r *http.Request, step func(workflow.Session) (workflow.Session, error)) {
	next, err := step(a.session(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Sessions.Put(next)
	a.writeWorkflow(w, r, next)
}
