package login

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flatroom/flat-server-go/internal/core"
)

// ProviderError is a failure reported by the identity provider itself.
// Reason is stored as the login attempt's failure reason.
type ProviderError struct {
	Reason      string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "identity provider: " + e.Reason
	}
	return fmt.Sprintf("identity provider: %s: %s", e.Reason, e.Description)
}

// GithubConfig configures GithubProvider.
type GithubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// OAuthURL and APIURL default to github.com endpoints.
	OAuthURL string
	APIURL   string
}

// GithubProvider implements core.IdentityProvider for GitHub OAuth apps.
type GithubProvider struct {
	cfg  GithubConfig
	http *http.Client
}

// NewGithubProvider creates a GithubProvider. A nil httpClient gets a 10s timeout.
func NewGithubProvider(cfg GithubConfig, httpClient *http.Client) *GithubProvider {
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = "https://github.com"
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.github.com"
	}
	cfg.OAuthURL = strings.TrimRight(cfg.OAuthURL, "/")
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GithubProvider{cfg: cfg, http: httpClient}
}

type githubTokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// Exchange trades an authorization code for the GitHub user's profile.
func (p *GithubProvider) Exchange(ctx context.Context, code, state string) (*core.ExternalIdentity, error) {
	form := url.Values{
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"code":          {code},
		"state":         {state},
	}
	if p.cfg.RedirectURI != "" {
		form.Set("redirect_uri", p.cfg.RedirectURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.OAuthURL+"/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var token githubTokenResponse
	if err := p.doJSON(req, &token); err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if token.Error != "" {
		return nil, &ProviderError{Reason: token.Error, Description: token.ErrorDescription}
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("exchange code: empty access token")
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Authorization", "token "+token.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	var user githubUser
	if err := p.doJSON(req, &user); err != nil {
		return nil, fmt.Errorf("fetch github user: %w", err)
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return &core.ExternalIdentity{
		Source:  core.LoginSourceGithub,
		UnionID: strconv.FormatInt(user.ID, 10),
		Name:    name,
		Avatar:  user.AvatarURL,
		Email:   user.Email,
	}, nil
}

func (p *GithubProvider) doJSON(req *http.Request, out any) error {
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
