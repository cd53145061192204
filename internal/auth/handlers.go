package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// AdminLoginRequest is the body of POST /api/admin/login.
type AdminLoginRequest struct {
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// TokenResponse carries an issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
	SessionID string    `json:"session_id,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Handlers serves the admin login endpoint.
type Handlers struct {
	jwtService      *JWTService
	passwordService *PasswordService
	validator       *validator.Validate
}

// NewHandlers creates a new auth handlers instance
func NewHandlers(jwtService *JWTService, passwordService *PasswordService) *Handlers {
	return &Handlers{
		jwtService:      jwtService,
		passwordService: passwordService,
		validator:       validator.New(),
	}
}

// AdminLogin exchanges the admin password for an admin token.
// POST /api/admin/login
func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		SendError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "Use POST")
		return
	}
	if !h.passwordService.AdminEnabled() {
		SendError(w, http.StatusForbidden, "AdminDisabled", "Admin login is not configured")
		return
	}

	var req AdminLoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		SendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		SendValidationError(w, err)
		return
	}

	if !h.passwordService.VerifyAdmin(req.Password) {
		log.Printf("[Auth] Rejected admin login from %s", r.RemoteAddr)
		SendError(w, http.StatusUnauthorized, "InvalidCredentials", "Invalid password")
		return
	}

	token, err := h.jwtService.GenerateAdminToken()
	if err != nil {
		log.Printf("[Auth] Error generating admin token: %v", err)
		SendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
		return
	}

	SendJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.jwtService.GetTokenExpiration()),
		Role:      RoleAdmin,
	})
}

// SendJSON writes payload as a JSON response.
func SendJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// SendError writes an ErrorResponse.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
		Code:    code,
	})
}

// SendValidationError reports validator failures field by field.
func SendValidationError(w http.ResponseWriter, err error) {
	var messages []string
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			messages = append(messages, fmt.Sprintf("%s: %s", fe.Field(), validationMessage(fe)))
		}
	} else {
		messages = append(messages, err.Error())
	}
	SendError(w, http.StatusBadRequest, "ValidationError", strings.Join(messages, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be > %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must be >= %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
