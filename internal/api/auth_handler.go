package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lectio/lectio-api/internal/auth"
)

// AuthHandler handles authentication-related API requests.
type AuthHandler struct {
	verifier   auth.APIKeyVerifier
	jwtService auth.JWTService
	validator  *validator.Validate
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(verifier auth.APIKeyVerifier, jwtService auth.JWTService) *AuthHandler {
	return &AuthHandler{
		verifier:   verifier,
		jwtService: jwtService,
		validator:  validator.New(),
	}
}

// Token handles the /auth/token endpoint: exchanges a valid API key for a
// short-lived access token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest

	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Validation error: api_key is required")
		return
	}

	if err := h.verifier.Verify(req.APIKey); err != nil {
		RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(r.Context())
	if err != nil {
		RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to generate authentication token", err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	})
}
