package whiteboard

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"
)

// TokenRole is the permission level a signed token grants.
type TokenRole string

const (
	RoleAdmin  TokenRole = "0"
	RoleWriter TokenRole = "1"
	RoleReader TokenRole = "2"
)

const taskTokenPrefix = "NETLESSTASK_"

// ErrSigningKeysMissing is returned when no access key pair is configured.
var ErrSigningKeysMissing = errors.New("whiteboard access key pair is not configured")

// TaskTokenParams describes a task-scoped token.
type TaskTokenParams struct {
	TaskUUID string
	Role     TokenRole
	// Lifespan of zero signs a token without expiry.
	Lifespan time.Duration
	Nonce    string
	Now      time.Time
}

// SignTaskToken signs a token that only grants access to one conversion
// task. The signature is an HMAC-SHA256 of the sorted query string keyed by
// secretAccessKey.
func SignTaskToken(accessKey, secretAccessKey string, p TaskTokenParams) (string, error) {
	if accessKey == "" || secretAccessKey == "" {
		return "", ErrSigningKeysMissing
	}
	if p.TaskUUID == "" {
		return "", errors.New("task uuid is required")
	}

	values := url.Values{
		"ak":    {accessKey},
		"nonce": {p.Nonce},
		"role":  {string(p.Role)},
		"uuid":  {p.TaskUUID},
	}
	if p.Lifespan > 0 {
		values.Set("expireAt", strconv.FormatInt(p.Now.Add(p.Lifespan).UnixMilli(), 10))
	}

	mac := hmac.New(sha256.New, []byte(secretAccessKey))
	mac.Write([]byte(values.Encode()))
	values.Set("sig", hex.EncodeToString(mac.Sum(nil)))

	return taskTokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(values.Encode())), nil
}
