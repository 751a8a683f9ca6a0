// Package login tracks browser-initiated OAuth login attempts from
// registration, through the provider callback, to the client's poll.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flatroom/flat-server-go/internal/core"
	"github.com/flatroom/flat-server-go/internal/metrics"
)

// Service implements the login polling operations.
type Service struct {
	cache    core.AuthCache
	users    core.UserStore
	tokens   core.TokenIssuer
	provider core.IdentityProvider
}

// NewService creates a Service.
func NewService(cache core.AuthCache, users core.UserStore, tokens core.TokenIssuer, provider core.IdentityProvider) *Service {
	return &Service{cache: cache, users: users, tokens: tokens, provider: provider}
}

// reasonExchangeFailed is stored when the code exchange fails for a reason
// the provider did not name.
const reasonExchangeFailed = "exchange_failed"

// SetAuthUUID registers a new login attempt. Reusing an id is rejected.
func (s *Service) SetAuthUUID(ctx context.Context, authUUID string) error {
	created, err := s.cache.SetNX(ctx, core.AuthUUIDKey(authUUID), "1")
	if err != nil {
		return fmt.Errorf("store auth uuid: %w", err)
	}
	if !created {
		slog.WarnContext(ctx, "auth uuid already registered", "auth_uuid", authUUID)
		return core.NewParamsCheckFailed("authUUID already in use")
	}
	return nil
}

// AssertHasAuthUUID fails with ParamsCheckFailed unless authUUID is a live attempt.
func (s *Service) AssertHasAuthUUID(ctx context.Context, authUUID string) error {
	_, ok, err := s.cache.Get(ctx, core.AuthUUIDKey(authUUID))
	if err != nil {
		return fmt.Errorf("load auth uuid: %w", err)
	}
	if !ok {
		slog.WarnContext(ctx, "uuid verification failed", "auth_uuid", authUUID)
		return core.NewParamsCheckFailed("authUUID not found")
	}
	return nil
}

// Process reports the state of a login attempt. While the callback has not
// completed, it returns an empty UserInfo.
func (s *Service) Process(ctx context.Context, authUUID string) (*core.UserInfo, error) {
	if err := s.AssertHasAuthUUID(ctx, authUUID); err != nil {
		metrics.LoginProcessTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	reason, failed, err := s.cache.Get(ctx, core.AuthFailedKey(authUUID))
	if err != nil {
		return nil, fmt.Errorf("load auth failure: %w", err)
	}
	if failed {
		metrics.LoginProcessTotal.WithLabelValues("failed").Inc()
		return nil, core.NewFailed(core.LoginFailureCode(reason))
	}

	raw, done, err := s.cache.Get(ctx, core.AuthUserInfoKey(authUUID))
	if err != nil {
		return nil, fmt.Errorf("load auth user info: %w", err)
	}
	if !done {
		metrics.LoginProcessTotal.WithLabelValues("pending").Inc()
		return &core.UserInfo{}, nil
	}

	var info core.UserInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("decode auth user info: %w", err)
	}
	metrics.LoginProcessTotal.WithLabelValues("success").Inc()
	return &info, nil
}

// Fail records the provider's failure reason for a login attempt.
func (s *Service) Fail(ctx context.Context, authUUID, reason string) error {
	if err := s.cache.Set(ctx, core.AuthFailedKey(authUUID), reason); err != nil {
		return fmt.Errorf("store auth failure: %w", err)
	}
	slog.InfoContext(ctx, "login attempt failed", "auth_uuid", authUUID, "reason", reason)
	return nil
}

// Complete binds identity to a user, issues a session token and stores the
// result for the polling client.
func (s *Service) Complete(ctx context.Context, authUUID string, identity *core.ExternalIdentity) (*core.UserInfo, error) {
	user, err := s.users.UpsertExternalUser(ctx, *identity)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	token, err := s.tokens.Issue(user.UserUUID, identity.Source)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	info := &core.UserInfo{
		Name:     user.Name,
		Avatar:   user.Avatar,
		UserUUID: user.UserUUID,
		Token:    token,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode user info: %w", err)
	}
	if err := s.cache.Set(ctx, core.AuthUserInfoKey(authUUID), string(data)); err != nil {
		return nil, fmt.Errorf("store user info: %w", err)
	}
	slog.InfoContext(ctx, "login attempt completed", "auth_uuid", authUUID, "user_uuid", user.UserUUID)
	return info, nil
}

// Callback handles the provider's redirect for a login attempt. Either
// providerError (the provider refused) or code (the user consented) is set.
func (s *Service) Callback(ctx context.Context, authUUID, code, providerError string) error {
	if err := s.AssertHasAuthUUID(ctx, authUUID); err != nil {
		return err
	}

	if providerError != "" {
		if err := s.Fail(ctx, authUUID, providerError); err != nil {
			return err
		}
		return core.NewFailed(core.LoginFailureCode(providerError))
	}
	if code == "" {
		return core.NewParamsCheckFailed("code is required")
	}

	identity, err := s.provider.Exchange(ctx, code, authUUID)
	if err != nil {
		reason := reasonExchangeFailed
		var perr *ProviderError
		if errors.As(err, &perr) {
			reason = perr.Reason
		}
		slog.ErrorContext(ctx, "identity provider exchange", "auth_uuid", authUUID, "error", err)
		if failErr := s.Fail(ctx, authUUID, reason); failErr != nil {
			return failErr
		}
		return core.NewFailed(core.LoginFailureCode(reason))
	}

	if _, err := s.Complete(ctx, authUUID, identity); err != nil {
		if failErr := s.Fail(ctx, authUUID, reasonExchangeFailed); failErr != nil {
			slog.ErrorContext(ctx, "record login failure", "auth_uuid", authUUID, "error", failErr)
		}
		return err
	}
	return nil
}
