package core

import "time"

// AuthStateTTL bounds how long a login attempt and its results live in the cache.
const AuthStateTTL = time.Hour

// Failure reasons reported by the GitHub OAuth callback.
const (
	AuthFailApplicationSuspended = "application_suspended"
	AuthFailRedirectURIMismatch  = "redirect_uri_mismatch"
	AuthFailAccessDenied         = "access_denied"
)

// AuthUUIDKey marks a live login attempt.
func AuthUUIDKey(authUUID string) string { return "auth.uuid." + authUUID }

// AuthFailedKey holds the callback's failure reason.
func AuthFailedKey(authUUID string) string { return "auth.failed." + authUUID }

// AuthUserInfoKey holds the JSON-encoded UserInfo of a completed login.
func AuthUserInfoKey(authUUID string) string { return "auth.userinfo." + authUUID }

// UserInfo is what a completed login hands back to the polling client.
type UserInfo struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	UserUUID string `json:"userUUID"`
	Token    string `json:"token"`
}

// LoginFailureCode maps a callback failure reason to an error code.
func LoginFailureCode(reason string) ErrorCode {
	switch reason {
	case AuthFailApplicationSuspended:
		return ErrCodeLoginGithubSuspended
	case AuthFailRedirectURIMismatch:
		return ErrCodeLoginGithubURLMismatch
	case AuthFailAccessDenied:
		return ErrCodeLoginGithubAccessDenied
	default:
		return ErrCodeCurrentProcessFailed
	}
}

// LoginSource identifies the identity provider a user signed in with.
type LoginSource string

const LoginSourceGithub LoginSource = "github"

// ExternalIdentity is the profile returned by an identity provider after
// a successful code exchange.
type ExternalIdentity struct {
	Source  LoginSource
	UnionID string
	Name    string
	Avatar  string
	Email   string
}

// User is a row of the users table.
type User struct {
	UserUUID  string
	Name      string
	Avatar    string
	CreatedAt time.Time
}
