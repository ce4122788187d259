package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/beautivo/be-plt-auth/internal/service"
)

type contextKey string

const staffIDKey contextKey = "staffID"

// HTTPHandler exposes the auth service over HTTP.
type HTTPHandler struct {
	service *service.AuthService
	log     zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc *service.AuthService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: svc,
		log:     log,
	}
}

// Routes mounts all auth endpoints.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/customer/request-otp", h.RequestCustomerOTP)
	r.Post("/auth/customer/verify-otp", h.VerifyCustomerOTP)
	r.Post("/auth/staff/login", h.StaffLogin)
	r.Post("/auth/staff/verify-2fa", h.VerifySecondFactor)
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireStaff)
		r.Post("/auth/staff/2fa/setup", h.SetupSecondFactor)
		r.Post("/auth/staff/2fa/confirm", h.ConfirmSecondFactor)
		r.Post("/auth/staff/2fa/disable", h.DisableSecondFactor)
	})

	return r
}

// RequireStaff verifies a staff bearer token and injects the staff ID.
func (h *HTTPHandler) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		staffID, err := h.service.VerifyStaffAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), staffIDKey, staffID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *HTTPHandler) RequestCustomerOTP(w http.ResponseWriter, r *http.Request) {
	var req service.RequestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ShopID == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "shopId and email are required")
		return
	}

	resp, err := h.service.RequestCustomerOTP(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) VerifyCustomerOTP(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ShopID == "" || req.Email == "" || len(req.OTP) != 6 {
		writeError(w, http.StatusBadRequest, "shopId, email and a 6-digit otp are required")
		return
	}

	resp, err := h.service.VerifyCustomerOTP(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	var req service.StaffLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	resp, err := h.service.StaffLogin(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) VerifySecondFactor(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyTwoFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TempToken == "" || len(req.Code) != 6 {
		writeError(w, http.StatusBadRequest, "tempToken and a 6-digit code are required")
		return
	}

	resp, err := h.service.VerifySecondFactor(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) SetupSecondFactor(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.SetupSecondFactor(r.Context(), staffIDFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) ConfirmSecondFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.ConfirmSecondFactor(r.Context(), staffIDFrom(r), req.Code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) DisableSecondFactor(w http.ResponseWriter, r *http.Request) {
	var req service.DisableTwoFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.DisableSecondFactor(r.Context(), staffIDFrom(r), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	resp, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.Logout(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrShopNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrOTPRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrTwoFANotPending), errors.Is(err, service.ErrTwoFANotConfigured):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidOTP),
		errors.Is(err, service.ErrOTPAttemptsExceeded),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		h.log.Error().Err(err).Msg("Internal error")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func staffIDFrom(r *http.Request) string {
	staffID, _ := r.Context().Value(staffIDKey).(string)
	return staffID
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
