// internal/domain/auth/dto.go
package auth

import "authgate-service/internal/provider"

// LoginRequest for password login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	From     string `json:"from"`
}

// RegisterRequest for account creation
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type MFACodeRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
	From string `json:"from"`
}

type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}

type UpdateEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type UpdateProfileRequest struct {
	Data map[string]interface{} `json:"data" binding:"required"`
}

type UpdateSettingsRequest struct {
	Settings map[string]interface{} `json:"settings" binding:"required"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type OAuthRequest struct {
	Provider string `json:"provider" binding:"required"`
}

// TokenPairRequest carries the tokens the provider appends to email-link and
// OAuth redirects.
type TokenPairRequest struct {
	AccessToken  string `json:"access_token" form:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token" form:"refresh_token" binding:"required"`
	From         string `json:"from" form:"from"`
}

type EnrollRequest struct {
	FriendlyName string `json:"friendly_name"`
}

type VerifyEnrollmentRequest struct {
	FactorID string `json:"factor_id" binding:"required"`
	Code     string `json:"code" binding:"required,len=6,numeric"`
}

// LoginResult is the outcome of a primary-factor login. The zero value
// means the user is signed in.
type LoginResult struct {
	NeedsVerification bool   `json:"needs_verification,omitempty"`
	NeedsMFA          bool   `json:"needs_mfa,omitempty"`
	FactorID          string `json:"factor_id,omitempty"`
}

type RegisterResult struct {
	NeedsVerification bool `json:"needs_verification"`
}

// UserInfo is the user as shown to the tab.
type UserInfo struct {
	ID              string                 `json:"id"`
	Email           string                 `json:"email"`
	NewEmail        string                 `json:"new_email,omitempty"`
	EmailConfirmed  bool                   `json:"email_confirmed"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	HasVerifiedTOTP bool                   `json:"has_verified_totp"`
}

func NewUserInfo(u *provider.User) *UserInfo {
	if u == nil {
		return nil
	}
	return &UserInfo{
		ID:              u.ID,
		Email:           u.Email,
		NewEmail:        u.NewEmail,
		EmailConfirmed:  u.EmailConfirmed(),
		Metadata:        u.UserMetadata,
		HasVerifiedTOTP: len(u.VerifiedTOTP()) > 0,
	}
}
