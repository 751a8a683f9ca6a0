// Package whiteboard is a client for the whiteboard conversion service and
// the object storage check used for courseware bundles.
package whiteboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flatroom/flat-server-go/internal/core"
)

const tracerName = "github.com/flatroom/flat-server-go/internal/whiteboard"

// maxErrorBody caps how much of a failed response is kept in HTTPError.
const maxErrorBody = 4 << 10

// HTTPError is a non-2xx response from the conversion service or object storage.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Config configures a Client.
// SDKToken authenticates server-side calls and never leaves the server.
// AccessKey and SecretAccessKey sign the task tokens handed to clients,
// which expire after TaskTokenTTL (24h by default).
type Config struct {
	BaseURL         string
	SDKToken        string
	AccessKey       string
	SecretAccessKey string
	TaskTokenTTL    time.Duration
	Timeout         time.Duration
}

// Client implements core.ConversionClient.
type Client struct {
	baseURL         string
	sdkToken        string
	accessKey       string
	secretAccessKey string
	taskTokenTTL    time.Duration
	now             func() time.Time
	http            *http.Client
}

// New creates a Client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.TaskTokenTTL <= 0 {
		cfg.TaskTokenTTL = 24 * time.Hour
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		sdkToken:        cfg.SDKToken,
		accessKey:       cfg.AccessKey,
		secretAccessKey: cfg.SecretAccessKey,
		taskTokenTTL:    cfg.TaskTokenTTL,
		now:             time.Now,
		http:            httpClient,
	}
}

type queryTaskResponse struct {
	UUID   string                `json:"uuid"`
	Type   core.ConversionType   `json:"type"`
	Status core.ConversionStatus `json:"status"`
}

// QueryTask returns the status of a conversion task.
func (c *Client) QueryTask(ctx context.Context, region core.Region, taskUUID string, typ core.ConversionType) (core.ConversionStatus, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "whiteboard.QueryTask")
	defer span.End()
	span.SetAttributes(
		attribute.String("whiteboard.region", string(region)),
		attribute.String("whiteboard.task_uuid", taskUUID),
	)

	endpoint := fmt.Sprintf("%s/v5/services/conversion/tasks/%s?type=%s",
		c.baseURL, url.PathEscape(taskUUID), url.QueryEscape(string(typ)))
	var out queryTaskResponse
	if err := c.do(ctx, http.MethodGet, endpoint, region, nil, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query task")
		return "", err
	}
	span.SetAttributes(attribute.String("whiteboard.status", string(out.Status)))
	return out.Status, nil
}

type createTaskRequest struct {
	Resource string              `json:"resource"`
	Type     core.ConversionType `json:"type"`
	Preview  bool                `json:"preview,omitempty"`
	Scale    float64             `json:"scale,omitempty"`
}

type createTaskResponse struct {
	UUID string `json:"uuid"`
}

// CreateTask submits resource for conversion.
func (c *Client) CreateTask(ctx context.Context, region core.Region, resource string, typ core.ConversionType) (*core.ConversionTask, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "whiteboard.CreateTask")
	defer span.End()
	span.SetAttributes(attribute.String("whiteboard.region", string(region)))

	body := createTaskRequest{Resource: resource, Type: typ}
	if typ == core.ConversionDynamic {
		body.Preview = true
	} else {
		body.Scale = 1.2
	}

	var out createTaskResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v5/services/conversion/tasks", region, body, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create task")
		return nil, err
	}
	if out.UUID == "" {
		return nil, fmt.Errorf("create conversion task: empty task uuid")
	}
	token, err := c.TaskToken(out.UUID)
	if err != nil {
		return nil, fmt.Errorf("sign task token: %w", err)
	}
	return &core.ConversionTask{UUID: out.UUID, Token: token}, nil
}

// TaskToken signs a read-only token scoped to taskUUID.
func (c *Client) TaskToken(taskUUID string) (string, error) {
	return SignTaskToken(c.accessKey, c.secretAccessKey, TaskTokenParams{
		TaskUUID: taskUUID,
		Role:     RoleReader,
		Lifespan: c.taskTokenTTL,
		Nonce:    core.NewUUIDv4(),
		Now:      c.now(),
	})
}

// CoursewareStatus checks the result object next to a courseware bundle.
// A missing result means the conversion is still running.
func (c *Client) CoursewareStatus(ctx context.Context, resource string) (core.ConversionStatus, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "whiteboard.CoursewareStatus")
	defer span.End()

	resultURL := core.CoursewareResultURL(resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, resultURL, nil)
	if err != nil {
		return "", fmt.Errorf("build courseware check: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("check courseware result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.ConversionConverting, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &HTTPError{Method: http.MethodHead, URL: resultURL, StatusCode: resp.StatusCode}
		span.RecordError(err)
		return "", err
	}
	if resp.Header.Get("x-oss-meta-success") == "true" {
		return core.ConversionFinished, nil
	}
	return core.ConversionFail, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, region core.Region, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("token", c.sdkToken)
	req.Header.Set("region", string(region))
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Method: method, URL: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
