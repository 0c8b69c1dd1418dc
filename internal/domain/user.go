package domain

import "encoding/json"

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsActive  bool   `json:"is_active"`
	IsStaff   bool   `json:"is_staff"`
}

type Credentials struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

type GoogleLogin struct {
	AccessToken string `json:"access_token,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	Code        string `json:"code,omitempty"`
}

// AuthTokens covers both the JWT and the plain token flavours of the auth endpoints.
type AuthTokens struct {
	Access       string `json:"access"`
	Refresh      string `json:"refresh"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Key          string `json:"key"`
	User         *User  `json:"user,omitempty"`
}

func (t *AuthTokens) AccessValue() string {
	switch {
	case t.Access != "":
		return t.Access
	case t.AccessToken != "":
		return t.AccessToken
	default:
		return t.Key
	}
}

func (t *AuthTokens) RefreshValue() string {
	if t.Refresh != "" {
		return t.Refresh
	}
	return t.RefreshToken
}

type AdminLogin struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// DashboardStats is passed through untouched.
type DashboardStats = json.RawMessage
