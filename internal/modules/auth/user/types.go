package user

import (
	"errors"
	"time"
)

type LoginDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterDTO struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name"`
	Mail     string `json:"mail"`
}

type UpdateUserDTO struct {
	Name      *string            `json:"name"`
	Introduce *string            `json:"introduce"`
	Avatar    *string            `json:"avatar"`
	Mail      *string            `json:"mail"`
	URL       *string            `json:"url"`
	SocialIDs *map[string]string `json:"social_ids"`
}

type ChangePasswordDTO struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type CreateTokenDTO struct {
	Name      string     `json:"name" binding:"required"`
	ExpiredAt *time.Time `json:"expired_at"`
}

type userResponse struct {
	ID            string            `json:"id"`
	Username      string            `json:"username"`
	Name          string            `json:"name"`
	Introduce     string            `json:"introduce"`
	Avatar        string            `json:"avatar"`
	Mail          string            `json:"mail"`
	URL           string            `json:"url"`
	SocialIDs     map[string]string `json:"social_ids"`
	LastLoginTime *time.Time        `json:"last_login_time"`
	LastLoginIP   string            `json:"last_login_ip"`
}

// publicUserResponse omits login telemetry and mail for unauthenticated reads.
type publicUserResponse struct {
	ID        string            `json:"id"`
	Username  string            `json:"username"`
	Name      string            `json:"name"`
	Introduce string            `json:"introduce"`
	Avatar    string            `json:"avatar"`
	URL       string            `json:"url"`
	SocialIDs map[string]string `json:"social_ids"`
}

type loginResponse struct {
	Token string        `json:"token"`
	User  *userResponse `json:"user,omitempty"`
}

type tokenResponse struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Token   string     `json:"token"`
	Expired *time.Time `json:"expired"`
	Created time.Time  `json:"created"`
}

var (
	errUserNotFound       = errors.New("user not found")
	errWrongPassword      = errors.New("wrong password")
	errOwnerAlreadyExists = errors.New("owner already registered")
	errPasswordSameAsOld  = errors.New("password same as old")
	errTokenNotFound      = errors.New("token not found")
)
