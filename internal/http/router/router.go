package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/credential-manager-go/internal/health"
	"github.com/sandeepkv93/credential-manager-go/internal/http/handler"
	"github.com/sandeepkv93/credential-manager-go/internal/http/middleware"
	"github.com/sandeepkv93/credential-manager-go/internal/http/response"
)

const defaultBodyLimit = 1 << 20

type Dependencies struct {
	CredentialHandler *handler.CredentialHandler
	SessionParser     middleware.SessionParser
	CORSOrigins       []string
	Readiness         *health.ProbeRunner
	BodyLimitBytes    int64
	EnableOTelHTTP    bool
}

func NewRouter(dep Dependencies) http.Handler {
	bodyLimit := dep.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(bodyLimit))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	h := dep.CredentialHandler
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Get("/verify/{token}", h.VerifyEmailLink)
		r.Post("/verify", h.VerifyEmail)
		r.Post("/verify/resend", h.ResendVerification)
		r.Post("/login", h.Login)
		r.Post("/password/forgot", h.ForgotPassword)
		r.Post("/password/reset/{token}", h.ResetPasswordLink)
		r.Post("/password/reset", h.ResetPassword)
		r.With(middleware.SessionAuth(dep.SessionParser)).Get("/session", h.Session)
	})

	var out http.Handler = r
	if dep.EnableOTelHTTP {
		out = otelhttp.NewHandler(r, "http.server")
	}
	return out
}
