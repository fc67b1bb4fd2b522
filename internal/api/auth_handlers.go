package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/otp"
)

// UserRepository is the user persistence surface the auth handlers need.
type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	users        UserRepository
	otpService   *otp.Service
	emailService email.Sender
	jwtService   *auth.JWTService
}

func NewAuthHandlers(users UserRepository, otpService *otp.Service, emailService email.Sender, jwtService *auth.JWTService) *AuthHandlers {
	return &AuthHandlers{
		users:        users,
		otpService:   otpService,
		emailService: emailService,
		jwtService:   jwtService,
	}
}

type SendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// SendOTP issues a verification code for an address that is not registered
// yet and emails it.
func (h *AuthHandlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.users.GetByEmail(r.Context(), req.Email); err == nil {
		respondJSONError(w, "Email already registered", http.StatusConflict)
		return
	} else if !errors.Is(err, user.ErrUserNotFound) {
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	code, err := h.otpService.Issue(r.Context(), req.Email)
	if err != nil {
		log.Printf("[API] Failed to issue OTP for %s: %v", req.Email, err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.emailService.SendOTP(req.Email, code); err != nil {
		log.Printf("[API] Failed to send OTP email to %s: %v", req.Email, err)
		respondJSONError(w, "Failed to send verification email", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
}

// VerifyOTP checks a submitted code and marks the email verified for a
// single registration.
func (h *AuthHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.otpService.Verify(r.Context(), req.Email, req.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrNotFound):
			respondJSONError(w, "OTP not found or expired", http.StatusBadRequest)
		case errors.Is(err, otp.ErrExpired):
			respondJSONError(w, "OTP has expired, request a new one", http.StatusBadRequest)
		case errors.Is(err, otp.ErrTooManyAttempts):
			respondJSONError(w, "Too many attempts, request a new OTP", http.StatusBadRequest)
		case errors.Is(err, otp.ErrMismatch):
			respondJSONError(w, "Invalid verification code", http.StatusBadRequest)
		default:
			log.Printf("[API] OTP verification failed for %s: %v", req.Email, err)
			respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Email verified"})
}

// Register creates an account. It requires a prior OTP verification, which
// it consumes, so each verification admits exactly one registration.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	verified, err := h.otpService.ConsumeVerified(r.Context(), req.Email)
	if err != nil {
		log.Printf("[API] Failed to consume verification for %s: %v", req.Email, err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !verified {
		respondJSONError(w, "Email not verified", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			respondJSONError(w, "Password must be at least 8 characters", http.StatusBadRequest)
			return
		}
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	newUser := &user.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         auth.RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.users.Create(r.Context(), newUser); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			respondJSONError(w, "Email already registered", http.StatusConflict)
			return
		}
		log.Printf("[API] Failed to create user %s: %v", req.Email, err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setAuthCookies(w, r, newUser)

	respondJSON(w, http.StatusCreated, map[string]any{
		"user":    toUserResponse(newUser),
		"message": "Registration successful",
	})
}

// Login handles user login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		respondJSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if !u.IsActive {
		respondJSONError(w, "Account is deactivated", http.StatusForbidden)
		return
	}
	if !auth.CheckPassword(req.Password, u.PasswordHash) {
		respondJSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	h.setAuthCookies(w, r, u)

	respondJSON(w, http.StatusOK, map[string]any{
		"user":    toUserResponse(u),
		"message": "Login successful",
	})
}

// Logout clears the auth cookies.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// Refresh rotates the token pair from a valid refresh token cookie.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshCookie, err := r.Cookie("refresh_token")
	if err != nil {
		respondJSONError(w, "No refresh token", http.StatusUnauthorized)
		return
	}

	userID, err := h.jwtService.ValidateRefreshToken(refreshCookie.Value)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "User not found", http.StatusUnauthorized)
		return
	}
	if !u.IsActive {
		h.clearAuthCookies(w)
		respondJSONError(w, "Account is deactivated", http.StatusForbidden)
		return
	}

	h.setAuthCookies(w, r, u)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Token refreshed"})
}

// Me returns the current authenticated user's information
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	u, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		respondJSONError(w, "User not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *AuthHandlers) setAuthCookies(w http.ResponseWriter, r *http.Request, u *user.User) {
	accessToken, accessExpiry, _ := h.jwtService.GenerateAccessToken(u.ID, u.Email, u.Role)
	refreshToken, refreshExpiry, _ := h.jwtService.GenerateRefreshToken(u.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		Expires:  accessExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/api/auth/refresh",
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandlers) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     "/api/auth/refresh",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
