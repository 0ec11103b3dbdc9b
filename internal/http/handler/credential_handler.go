package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/credential-manager-go/internal/http/middleware"
	"github.com/sandeepkv93/credential-manager-go/internal/http/response"
	"github.com/sandeepkv93/credential-manager-go/internal/observability"
	"github.com/sandeepkv93/credential-manager-go/internal/service"
)

const (
	msgRegistered       = "User created successfully. Please verify your email."
	msgVerified         = "Email verified successfully"
	msgResendAccepted   = "If the account exists and is not verified, a new link has been sent."
	msgLoggedIn         = "Login successful"
	msgResetLinkSent    = "Password reset link sent to your email."
	msgPasswordUpdated  = "Password updated successfully."
	msgInvalidBody      = "invalid request body"
	msgInvalidToken     = "Invalid or expired token"
	msgInvalidCreds     = "Invalid credentials"
	msgUnverifiedLogin  = "Please verify your email before logging in."
	msgVerifiedConflict = "Email already in use and verified."
	msgPendingConflict  = "Email already in use. Please check your email for verification or log in."
	msgAlreadyVerified  = "Email already verified. Please log in."
	msgAccountNotFound  = "User not found"
)

type CredentialHandler struct {
	svc    service.CredentialServiceInterface
	logger *slog.Logger
}

func NewCredentialHandler(svc service.CredentialServiceInterface, logger *slog.Logger) *CredentialHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialHandler{svc: svc, logger: logger}
}

// registerRequest also accepts the camelCase fullName key older clients send.
type registerRequest struct {
	FullName      string `json:"full_name"`
	FullNameCamel string `json:"fullName"`
	Email         string `json:"email"`
	Password      string `json:"password"`
}

func (r registerRequest) input() service.RegisterInput {
	name := r.FullName
	if name == "" {
		name = r.FullNameCamel
	}
	return service.RegisterInput{FullName: name, Email: r.Email, Password: r.Password}
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// flowRecorder carries per-request metric and audit state for one credential flow.
type flowRecorder struct {
	h       *CredentialHandler
	w       http.ResponseWriter
	r       *http.Request
	flow    string
	action  string
	start   time.Time
	outcome string
	subject string
}

func (h *CredentialHandler) begin(w http.ResponseWriter, r *http.Request, flow, action string) *flowRecorder {
	return &flowRecorder{h: h, w: w, r: r, flow: flow, action: action, start: time.Now(), outcome: "success"}
}

func (f *flowRecorder) done(reason string) {
	observability.RecordAuthRequestDuration(f.r.Context(), f.action, f.outcome, time.Since(f.start))
	observability.RecordCredentialEvent(f.r.Context(), f.action, f.outcome)
	observability.Audit(f.r, observability.AuditInput{
		EventName:   f.flow,
		ActorUserID: f.subject,
		TargetID:    f.subject,
		Action:      f.action,
		Outcome:     f.outcome,
		Reason:      reason,
	})
}

func (f *flowRecorder) badBody() {
	f.outcome = "failure"
	f.done("invalid_body")
	response.Error(f.w, f.r, http.StatusBadRequest, "BAD_REQUEST", msgInvalidBody, nil)
}

// fail maps a service error onto the wire once, for every flow.
func (f *flowRecorder) fail(err error, internalMessage string) {
	f.outcome = "failure"
	status, code, message, reason := classifyCredentialError(err)
	var details any
	var inputErr *service.InputError
	if errors.As(err, &inputErr) {
		details = inputErr.FieldMessages()
		message = "validation failed"
	}
	if status == http.StatusInternalServerError {
		f.outcome = "error"
		message = internalMessage
		f.h.logger.ErrorContext(f.r.Context(), "credential operation failed",
			"flow", f.flow,
			"error", err,
		)
	}
	f.done(reason)
	response.Error(f.w, f.r, status, code, message, details)
}

func classifyCredentialError(err error) (status int, code, message, reason string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "BAD_REQUEST", "validation failed", "invalid_input"
	case errors.Is(err, service.ErrEmailVerifiedConflict):
		return http.StatusConflict, "EMAIL_ALREADY_VERIFIED", msgVerifiedConflict, "email_verified_conflict"
	case errors.Is(err, service.ErrEmailPendingConflict):
		return http.StatusConflict, "EMAIL_PENDING_VERIFICATION", msgPendingConflict, "email_pending_conflict"
	case errors.Is(err, service.ErrAlreadyVerified):
		return http.StatusConflict, "ALREADY_VERIFIED", msgAlreadyVerified, "already_verified"
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN", msgInvalidToken, "invalid_or_expired_token"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", msgInvalidCreds, "invalid_credentials"
	case errors.Is(err, service.ErrEmailUnverified):
		return http.StatusForbidden, "EMAIL_UNVERIFIED", msgUnverifiedLogin, "email_unverified"
	case errors.Is(err, service.ErrAccountNotFound):
		return http.StatusNotFound, "NOT_FOUND", msgAccountNotFound, "account_not_found"
	default:
		return http.StatusInternalServerError, "INTERNAL", "", "internal_error"
	}
}

func (h *CredentialHandler) Register(w http.ResponseWriter, r *http.Request) {
	f := h.begin(w, r, "auth.register", "register")
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		f.badBody()
		return
	}
	res, err := h.svc.Register(r.Context(), req.input())
	if err != nil {
		f.fail(err, "Server error during registration.")
		return
	}
	f.subject = res.AccountID
	f.done("verification_queued")
	response.JSON(w, r, http.StatusCreated, map[string]string{"message": msgRegistered, "email": res.Email})
}

// VerifyEmailLink handles the emailed GET link.
func (h *CredentialHandler) VerifyEmailLink(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, chi.URLParam(r, "token"))
}

func (h *CredentialHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		h.begin(w, r, "auth.verify", "verify").badBody()
		return
	}
	h.verify(w, r, req.Token)
}

func (h *CredentialHandler) verify(w http.ResponseWriter, r *http.Request, token string) {
	f := h.begin(w, r, "auth.verify", "verify")
	res, err := h.svc.VerifyEmail(r.Context(), token)
	if err != nil {
		f.fail(err, "Verification failed due to server error.")
		return
	}
	f.subject = res.User.ID
	f.done("email_verified")
	response.JSON(w, r, http.StatusOK, sessionBody(msgVerified, res))
}

func (h *CredentialHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	f := h.begin(w, r, "auth.verify.resend", "verify_resend")
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		f.badBody()
		return
	}
	if err := h.svc.ResendVerification(r.Context(), req.Email); err != nil {
		f.fail(err, "Server error during verification resend.")
		return
	}
	f.done("neutral_ack")
	response.JSON(w, r, http.StatusAccepted, map[string]string{"message": msgResendAccepted})
}

func (h *CredentialHandler) Login(w http.ResponseWriter, r *http.Request) {
	f := h.begin(w, r, "auth.login", "login")
	var in service.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		f.badBody()
		return
	}
	res, err := h.svc.Login(r.Context(), in)
	if err != nil {
		f.fail(err, "Server error during login.")
		return
	}
	f.subject = res.User.ID
	f.done("credentials_valid")
	response.JSON(w, r, http.StatusOK, sessionBody(msgLoggedIn, res))
}

func (h *CredentialHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	f := h.begin(w, r, "auth.password.forgot", "password_forgot")
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		f.badBody()
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		f.fail(err, "Server error during password reset request.")
		return
	}
	f.done("reset_queued")
	response.JSON(w, r, http.StatusOK, map[string]string{"message": msgResetLinkSent})
}

// ResetPasswordLink accepts the token from the path and the password from the body.
func (h *CredentialHandler) ResetPasswordLink(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		h.begin(w, r, "auth.password.reset", "password_reset").badBody()
		return
	}
	h.reset(w, r, chi.URLParam(r, "token"), req.Password)
}

func (h *CredentialHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		h.begin(w, r, "auth.password.reset", "password_reset").badBody()
		return
	}
	h.reset(w, r, req.Token, req.Password)
}

func (h *CredentialHandler) reset(w http.ResponseWriter, r *http.Request, token, password string) {
	f := h.begin(w, r, "auth.password.reset", "password_reset")
	if err := h.svc.CompletePasswordReset(r.Context(), token, password); err != nil {
		f.fail(err, "Server error during password reset.")
		return
	}
	f.done("password_changed")
	response.JSON(w, r, http.StatusOK, map[string]string{"message": msgPasswordUpdated})
}

// Session echoes the verified bearer claims.
func (h *CredentialHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	body := map[string]any{
		"user_id":               claims.Subject,
		"name":                  claims.Name,
		"has_completed_profile": claims.HasCompletedProfile,
		"type":                  claims.TokenType,
	}
	if claims.Email != "" {
		body["email"] = claims.Email
	}
	if claims.ExpiresAt != nil {
		body["expires_at"] = claims.ExpiresAt.Time
	}
	response.JSON(w, r, http.StatusOK, body)
}

func sessionBody(message string, res *service.SessionResult) map[string]any {
	return map[string]any{
		"message":    message,
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"user":       res.User,
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return errors.New("unsupported content type")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}
