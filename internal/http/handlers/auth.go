package handlers

import (
	"net/http"
	"time"

	"careercatalyst/internal/domain"
	"careercatalyst/internal/identity"
	"careercatalyst/internal/ledger"
	"careercatalyst/internal/middleware"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token    string `json:"token"`
	Password string `json:"password,omitempty"`
}

type sessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID           string                             `json:"id"`
	Email        string                             `json:"email"`
	Locale       string                             `json:"locale"`
	Subscription domain.Subscription                `json:"subscription"`
	Usage        domain.Usage                       `json:"usage"`
	Remaining    map[domain.Module]ledger.Remaining `json:"remaining"`
}

func (a *App) AuthSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "email and password required")
		return
	}
	user, err := a.Identity.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"email":    user.Email,
		"verified": user.Verified,
	})
}

func (a *App) AuthLogIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !a.decode(w, r, &req) {
		return
	}
	sess, err := a.Identity.LogIn(r.Context(), req.Email, req.Password, middleware.LocaleFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeSession(w, r, sess)
}

func (a *App) AuthVerify(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	sess, err := a.Identity.Verify(r.Context(), req.Token, middleware.LocaleFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeSession(w, r, sess)
}

func (a *App) AuthForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.Identity.RequestPasswordReset(r.Context(), req.Email); err != nil {
		a.fail(w, r, err)
		return
	}
	// Same answer for known and unknown addresses.
	a.json(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (a *App) AuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.Identity.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	profile, err := a.profile(r, userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, profile)
}

func (a *App) writeSession(w http.ResponseWriter, r *http.Request, sess *identity.Session) {
	profile, err := a.profile(r, sess.User.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: profile})
}

func (a *App) profile(r *http.Request, userID string) (userProfileDTO, error) {
	rec, err := a.Ledger.Record(r.Context(), userID)
	if err != nil {
		return userProfileDTO{}, err
	}
	remaining, err := a.Ledger.RemainingAll(r.Context(), userID)
	if err != nil {
		return userProfileDTO{}, err
	}
	return userProfileDTO{
		ID:           rec.UserID,
		Email:        rec.Email,
		Locale:       middleware.LocaleFromContext(r.Context()),
		Subscription: rec.Subscription,
		Usage:        rec.Usage,
		Remaining:    remaining,
	}, nil
}
