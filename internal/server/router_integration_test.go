package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/flatroom/flat-server-go/internal/convert"
	"github.com/flatroom/flat-server-go/internal/core"
	"github.com/flatroom/flat-server-go/internal/login"
	natsbackend "github.com/flatroom/flat-server-go/internal/nats"
	"github.com/flatroom/flat-server-go/internal/storage/sqlite"
	"github.com/flatroom/flat-server-go/internal/token"
	"github.com/flatroom/flat-server-go/internal/whiteboard"
)

type integrationEnv struct {
	url   string
	store *sqlite.Store
}

func TestRouterEndToEnd_LoginThenConvert(t *testing.T) {
	env := newIntegrationRouterServer(t)
	authUUID := core.NewUUIDv4()

	resp := postJSON(t, env.url+"/v1/login/set-auth-uuid", map[string]any{"authUUID": authUUID}, "")
	if body := decodeJSONBody(t, resp.Body); body["status"] != float64(0) {
		t.Fatalf("set-auth-uuid = %v", body)
	}

	resp = postJSON(t, env.url+"/v1/login/process", map[string]any{"authUUID": authUUID}, "")
	body := decodeJSONBody(t, resp.Body)
	if token, _ := lookupString(body, "data", "token"); token != "" {
		t.Fatalf("process before callback returned token %q", token)
	}

	cb, err := http.Get(env.url + "/v1/login/github/callback?state=" + authUUID + "&code=the-code")
	if err != nil {
		t.Fatalf("GET callback error: %v", err)
	}
	cb.Body.Close()
	if cb.StatusCode != http.StatusOK {
		t.Fatalf("callback status = %d, want %d", cb.StatusCode, http.StatusOK)
	}

	resp = postJSON(t, env.url+"/v1/login/process", map[string]any{"authUUID": authUUID}, "")
	body = decodeJSONBody(t, resp.Body)
	jwt, _ := lookupString(body, "data", "token")
	userUUID, _ := lookupString(body, "data", "userUUID")
	if jwt == "" || userUUID == "" {
		t.Fatalf("process after callback = %v", body)
	}

	fileUUID := core.NewUUIDv4()
	if err := env.store.CreateFile(context.Background(), userUUID, &core.CloudStorageFile{
		FileUUID:    fileUUID,
		FileName:    "deck.pptx",
		FileURL:     "https://cdn.example.com/deck.pptx",
		ConvertStep: core.ConvertStepConverting,
		TaskUUID:    "task-1",
		Region:      core.RegionCNHZ,
	}); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	resp = postJSON(t, env.url+"/v1/cloud-storage/convert/finish", map[string]any{"fileUUID": fileUUID}, jwt)
	if body := decodeJSONBody(t, resp.Body); body["status"] != float64(0) {
		t.Fatalf("finish = %v", body)
	}

	resp = postJSON(t, env.url+"/v1/cloud-storage/convert/finish", map[string]any{"fileUUID": fileUUID}, jwt)
	if body := decodeJSONBody(t, resp.Body); body["code"] != float64(core.ErrCodeFileIsConverted) {
		t.Fatalf("second finish = %v, want FileIsConverted", body)
	}
}

func TestRouterEndToEnd_RejectsReusedAuthUUID(t *testing.T) {
	env := newIntegrationRouterServer(t)
	authUUID := core.NewUUIDv4()

	resp := postJSON(t, env.url+"/v1/login/set-auth-uuid", map[string]any{"authUUID": authUUID}, "")
	resp.Body.Close()

	resp = postJSON(t, env.url+"/v1/login/set-auth-uuid", map[string]any{"authUUID": authUUID}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func postJSON(t *testing.T, url string, payload any, bearer string) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json marshal error: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request build error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("HTTP POST error: %v", err)
	}
	return resp
}

func decodeJSONBody(t *testing.T, body io.ReadCloser) map[string]any {
	t.Helper()
	defer body.Close()

	var out map[string]any
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("decode body error: %v", err)
	}
	return out
}

func lookupString(m map[string]any, outer, inner string) (string, bool) {
	node, ok := m[outer].(map[string]any)
	if !ok {
		return "", false
	}
	value, ok := node[inner].(string)
	return value, ok
}

// newUpstreamServer fakes both GitHub OAuth and the whiteboard conversion API.
func newUpstreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"gho_test"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":` + strconv.FormatInt(time.Now().UnixNano(), 10) + `,"login":"octocat","avatar_url":"https://avatars/o.png"}`))
	})
	mux.HandleFunc("/v5/services/conversion/tasks/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"uuid":"task-1","status":"Finished"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newIntegrationRouterServer(t *testing.T) integrationEnv {
	t.Helper()

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	backend, err := natsbackend.New(natsURL, core.AuthStateTTL)
	if err != nil {
		t.Skipf("skipping integration test; NATS unavailable at %s: %v", natsURL, err)
	}
	t.Cleanup(func() {
		_ = backend.Close()
	})

	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "flat.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	upstream := newUpstreamServer(t)
	tokens, err := token.NewManager(token.Config{Secret: []byte("integration-secret"), Issuer: "flat-server"})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	wb := whiteboard.New(whiteboard.Config{BaseURL: upstream.URL, SDKToken: "sdk", AccessKey: "ak", SecretAccessKey: "sk"}, upstream.Client())
	github := login.NewGithubProvider(login.GithubConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		OAuthURL:     upstream.URL,
		APIURL:       upstream.URL,
	}, upstream.Client())

	router := NewRouter(Deps{
		Convert: convert.NewService(store, wb),
		Login:   login.NewService(backend.AuthCache(), store, tokens, github),
		Tokens:  tokens,
		Health:  map[string]Pinger{"sqlite": store, "nats": backend},
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return integrationEnv{url: ts.URL, store: store}
}
