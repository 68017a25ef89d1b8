package auth

import "golang.org/x/crypto/bcrypt"

// APIKeyVerifier defines the interface for checking a presented API key
// against the configured credential.
type APIKeyVerifier interface {
	// Verify compares the presented key against the stored hash.
	// Returns nil on success, or ErrInvalidAPIKey on mismatch.
	Verify(presentedKey string) error
}

// BcryptVerifier implements APIKeyVerifier against a bcrypt hash of the key.
type BcryptVerifier struct {
	hash []byte
}

// NewBcryptVerifier creates an APIKeyVerifier for the given bcrypt hash.
func NewBcryptVerifier(apiKeyHash string) *BcryptVerifier {
	return &BcryptVerifier{hash: []byte(apiKeyHash)}
}

// Verify implements the APIKeyVerifier interface using bcrypt.
func (v *BcryptVerifier) Verify(presentedKey string) error {
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(presentedKey)); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}
