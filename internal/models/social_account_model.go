package models

import (
	"time"
)

// SocialAccount tokens are stored encrypted; see utils.Encrypt.
type SocialAccount struct {
	ID             string     `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	Platform       Platform   `db:"platform" json:"platform"`
	ExternalID     string     `db:"external_id" json:"external_id"`
	AccountName    string     `db:"account_name" json:"account_name"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	IsConnected    bool       `db:"is_connected" json:"is_connected"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SocialAccountPage is a publishable sub-identity such as a Facebook page or
// a LinkedIn organization. It carries its own token copy.
type SocialAccountPage struct {
	ID              string     `db:"id" json:"id"`
	SocialAccountID string     `db:"social_account_id" json:"social_account_id"`
	ExternalID      string     `db:"external_id" json:"external_id"`
	Name            string     `db:"name" json:"name"`
	AccessToken     string     `db:"access_token" json:"-"`
	TokenExpiresAt  *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

type BrandSocialAccount struct {
	BrandID         string    `db:"brand_id" json:"brand_id"`
	SocialAccountID string    `db:"social_account_id" json:"social_account_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
