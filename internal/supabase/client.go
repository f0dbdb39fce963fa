package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/joseph-ayodele/cv-parser/constants"
	"github.com/joseph-ayodele/cv-parser/internal/common"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
	Table          string // default "candidates"
	Timeout        time.Duration
}

// Client talks to a Supabase project with the service role key: the Storage
// API for downloads and PostgREST for candidate updates. It is safe for
// concurrent use and meant to be built once per process.
type Client struct {
	rest   *resty.Client
	bucket string
	table  string
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, common.NewConfigError("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set")
	}
	if cfg.Bucket == "" {
		return nil, common.NewConfigError("SUPABASE_STORAGE_BUCKET must be non-empty")
	}
	if cfg.Table == "" {
		cfg.Table = constants.CandidatesTable
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	// Retries belong to the queue broker, so resty retries stay disabled.
	rest := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("apikey", cfg.ServiceRoleKey).
		SetAuthToken(cfg.ServiceRoleKey).
		SetRetryCount(0)

	return &Client{rest: rest, bucket: cfg.Bucket, table: cfg.Table, logger: logger}, nil
}

// Download fetches an object from the configured storage bucket.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	resp, err := c.rest.R().
		SetContext(ctx).
		Get(objectURL(c.bucket, path))
	if err != nil {
		c.logger.Error("supabase download failed", "storage_path", path, "error", err)
		return nil, common.NewTransientError(fmt.Sprintf("download %q", path), err)
	}
	if resp.IsError() {
		err := storageError(path, resp)
		c.logger.Error("supabase download failed",
			"storage_path", path,
			"status", resp.StatusCode(),
			"kind", common.Kind(err),
			"error", err,
		)
		return nil, err
	}

	c.logger.Debug("supabase object downloaded",
		"storage_path", path,
		"bytes", len(resp.Body()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.Body(), nil
}

// UpdateCVText sets cv_text on the candidate row with the given id.
func (c *Client) UpdateCVText(ctx context.Context, candidateID int64, text string) error {
	var rows []map[string]any
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+strconv.FormatInt(candidateID, 10)).
		SetQueryParam("select", "id").
		SetHeader("Prefer", "return=representation").
		SetHeader("Accept", "application/json").
		SetBody(map[string]string{constants.CVTextColumn: text}).
		SetResult(&rows).
		Patch("/rest/v1/" + url.PathEscape(c.table))
	if err != nil {
		c.logger.Error("supabase update failed", "candidate_id", candidateID, "error", err)
		return common.NewTransientError("update candidate cv text", err)
	}
	if resp.IsError() {
		err := restError(candidateID, resp)
		c.logger.Error("supabase update failed",
			"candidate_id", candidateID,
			"status", resp.StatusCode(),
			"kind", common.Kind(err),
			"error", err,
		)
		return err
	}
	if len(rows) == 0 {
		return common.NewNotFoundError(fmt.Sprintf("candidate %d", candidateID), nil)
	}
	c.logger.Debug("candidate cv text updated", "candidate_id", candidateID, "chars", len(text))
	return nil
}

// Ping checks that the Storage API answers with the service key.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.rest.R().SetContext(ctx).Get("/storage/v1/bucket/" + url.PathEscape(c.bucket))
	if err != nil {
		return common.NewTransientError("ping supabase", err)
	}
	if resp.IsError() {
		return common.NewTransientError("ping supabase", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return nil
}

func objectURL(bucket, path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/storage/v1/object/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// apiError is the error body returned by the Storage API.
type apiError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func storageError(path string, resp *resty.Response) error {
	msg := fmt.Sprintf("download %q", path)
	var body apiError
	_ = json.Unmarshal(resp.Body(), &body)
	cause := errors.New(firstNonEmpty(body.Message, body.Error, resp.Status()))

	// Storage answers 400 with statusCode "404" for missing objects.
	if resp.StatusCode() == http.StatusNotFound || body.StatusCode == "404" || body.Error == "not_found" {
		return common.NewNotFoundError(msg, cause)
	}
	return common.NewTransientError(msg, fmt.Errorf("status %d: %w", resp.StatusCode(), cause))
}

func restError(candidateID int64, resp *resty.Response) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body(), &body)
	cause := fmt.Errorf("status %d: %s", resp.StatusCode(), firstNonEmpty(body.Message, resp.Status()))
	if resp.StatusCode() == http.StatusNotFound {
		return common.NewNotFoundError(fmt.Sprintf("candidate %d", candidateID), cause)
	}
	return common.NewTransientError("update candidate cv text", cause)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
