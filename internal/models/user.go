package models

import "time"

// UserModel represents the workspace owner. Single-owner deployment:
// the first registered account owns every project.
type UserModel struct {
	Base
	Username      string            `json:"username"        gorm:"uniqueIndex;not null"`
	Name          string            `json:"name"`
	Introduce     string            `json:"introduce"`
	Avatar        string            `json:"avatar"`
	Password      string            `json:"-"               gorm:"not null"`
	Mail          string            `json:"mail"`
	URL           string            `json:"url"`
	SocialIDs     map[string]string `json:"social_ids"      gorm:"type:longtext;serializer:json"`
	LastLoginTime *time.Time        `json:"last_login_time"`
	LastLoginIP   string            `json:"last_login_ip"`
	APITokens     []APIToken        `json:"api_tokens,omitempty" gorm:"foreignKey:UserID"`
}

func (UserModel) TableName() string { return "users" }

// APIToken represents a personal API token for programmatic access.
type APIToken struct {
	Base
	UserID    string     `json:"-"          gorm:"index;not null"`
	Token     string     `json:"token"      gorm:"uniqueIndex;not null"`
	Name      string     `json:"name"`
	ExpiredAt *time.Time `json:"expired_at"`
}

func (APIToken) TableName() string { return "api_tokens" }

// AuthnModel stores WebAuthn/passkey credentials.
type AuthnModel struct {
	Base
	Name                 string      `json:"name"                    gorm:"uniqueIndex;not null"`
	CredentialID         []byte      `json:"-"                       gorm:"type:blob"`
	CredentialPublicKey  []byte      `json:"-"                       gorm:"type:blob"`
	Counter              uint32      `json:"counter"`
	Transports           StringArray `json:"transports"              gorm:"type:longtext"`
	CredentialDeviceType string      `json:"credential_device_type"`
	CredentialBackedUp   bool        `json:"credential_backed_up"`
}

func (AuthnModel) TableName() string { return "authn_credentials" }
