package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"careercatalyst/internal/http/handlers"
	"careercatalyst/internal/middleware"
)

type Options struct {
	Logger         zerolog.Logger
	JWTSecret      string
	AllowedOrigins []string
	// RateLimitPerMin bounds auth and module calls per client IP.
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	LocaleMatcher   middleware.LocaleMatcher
	Observe         middleware.Observer
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger, opts.Observe),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup, opts.LocaleMatcher),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", app.MetricsHandler())
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Get("/v1/languages", app.Languages)
	r.Get("/v1/stats/summary", app.StatsSummary)

	limited := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(limited)
		r.Post("/signup", app.AuthSignUp)
		r.Post("/login", app.AuthLogIn)
		r.Post("/verify", app.AuthVerify)
		r.Post("/password/forgot", app.AuthForgotPassword)
		r.Post("/password/reset", app.AuthResetPassword)
	})

	r.Route("/v1/billing", func(r chi.Router) {
		r.Get("/success", app.BillingSuccess)
		r.Get("/cancel", app.BillingCancel)
		r.Post("/webhook", app.BillingWebhook)
		r.With(middleware.AuthJWT(opts.JWTSecret)).Post("/checkout", app.BillingCheckout)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Get("/v1/me", app.Me)

		r.Route("/v1/session", func(r chi.Router) {
			r.Get("/", app.SessionGet)
			r.Post("/next", app.SessionNext)
			r.Post("/back", app.SessionBack)
			r.Post("/reset", app.SessionReset)
			r.Post("/goto", app.SessionGoto)
			r.Put("/language", app.SessionLanguage)
		})

		r.Route("/v1/modules", func(r chi.Router) {
			r.Use(limited)
			r.Post("/cv", app.ModuleCV)
			r.Post("/job", app.ModuleJob)
			r.Post("/fit", app.ModuleFit)
			r.Post("/cv-improvement", app.ModuleCVImprovement)
			r.Post("/questions", app.ModuleQuestions)
			r.Get("/questions/report", app.QuestionsReport)
			r.Post("/practice", app.ModulePractice)
		})
	})

	return r
}
