// Package httpapi exposes the gates as a small JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aryangodara/secure_gate/gate"
)

const maxBodyBytes = 1 << 20

// AdminBackend is what the admin status endpoint needs from the backend.
type AdminBackend interface {
	gate.AdminChecker
	gate.ProfileReader
	gate.PrincipalResolver
}

// Handler wires HTTP endpoints for the auth and authorization gates.
type Handler struct {
	logger    *slog.Logger
	auth      *gate.AuthGate
	admin     AdminBackend
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, auth *gate.AuthGate, admin AdminBackend) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		auth:      auth,
		admin:     admin,
		validator: validator.New(),
	}
}

// MountAuthRoutes registers sign-in and sign-up on r.
func (h *Handler) MountAuthRoutes(r chi.Router) {
	r.Post("/signin", h.handleSignIn)
	r.Post("/signup", h.handleSignUp)
}

// MountAdminRoutes registers admin routes on r.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/status", h.handleAdminStatus)
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,max=320"`
	Password string `json:"password" validate:"required,max=1024"`
}

type signUpRequest struct {
	Email       string `json:"email" validate:"required,max=320"`
	Password    string `json:"password" validate:"required,max=1024"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

type adminStatusResponse struct {
	IsAdmin bool   `json:"is_admin"`
	UserID  string `json:"user_id"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !h.decode(w, r, &req, gate.CategoryAuthentication) {
		return
	}

	result, err := h.auth.SecureSignIn(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !h.decode(w, r, &req, gate.CategoryRegistration) {
		return
	}

	result, err := h.auth.SecureSignUp(r.Context(), strings.TrimSpace(req.Email), req.Password, req.DisplayName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var principal *gate.Principal
	if token := bearerToken(r); token != "" {
		p, err := h.admin.Principal(ctx, token)
		var rejected *gate.RejectedError
		switch {
		case err == nil:
			principal = p
		case errors.As(err, &rejected):
			// An unknown or expired token is the same as no session.
		default:
			h.writeError(w, r, err)
			return
		}
	}

	var profile *gate.Profile
	if principal != nil {
		p, err := h.admin.Profile(ctx, *principal)
		if err != nil {
			h.logger.WarnContext(ctx, "profile lookup failed", slog.String("principal", principal.ID), slog.Any("error", err))
		} else {
			profile = p
		}
	}

	security := gate.NewAdminSecurity(h.admin, gate.WithAdminLogger(h.logger))
	security.SetPrincipal(ctx, principal, profile)
	if err := security.RequireAdmin(ctx); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, adminStatusResponse{IsAdmin: true, UserID: principal.ID})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, category string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Category: category,
			Message:  "Request body must be a JSON object.",
		})
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var details []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details = append(details, fieldMessage(fe))
			}
		}
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Category: category,
			Message:  "Please check the highlighted fields.",
			Details:  details,
		})
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " is too long"
	default:
		return fe.Field() + " is invalid"
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
