package rodin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultTimeout is the HTTP client timeout used when no client is
	// injected.
	defaultTimeout = 120 * time.Second

	submitPath   = "/rodin"
	statusPath   = "/status"
	downloadPath = "/download"
)

// Client calls the Rodin generation API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a Rodin API client. httpClient may be nil, in which
// case a default client with a generous timeout is used (submissions carry
// multi-megabyte image payloads).
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// Submit sends the multipart generation request: normalized images, the
// (enhanced) prompt, every user option, the fixed mesh-processing
// parameters, and any derived fields.
func (c *Client) Submit(ctx context.Context, images []UploadImage, prompt string, opts Options, derived DerivedFields) (*SubmitResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for _, img := range images {
		part, err := w.CreateFormFile("images", img.Name)
		if err != nil {
			return nil, fmt.Errorf("build multipart payload: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, fmt.Errorf("build multipart payload: %w", err)
		}
	}

	fields := map[string]string{
		"prompt":               prompt,
		"condition_mode":       string(opts.ConditionMode),
		"geometry_file_format": opts.GeometryFormat,
		"material":             string(opts.Material),
		"quality":              string(opts.Quality),
		"use_hyper":            strconv.FormatBool(opts.UseHyper),
		"tier":                 string(opts.Tier),
		"TAPose":               strconv.FormatBool(opts.TAPose),
		"mesh_mode":            "Quad",
		"mesh_simplify":        "true",
		"mesh_smooth":          "true",
		"texture_resolution":   opts.TextureResolution(),
	}
	if derived.EdgeEnhancement {
		fields["edge_enhancement"] = "true"
	}
	if derived.PreserveTransparency {
		fields["preserve_transparency"] = "true"
	}
	if derived.DetailLevel != "" {
		fields["detail_level"] = derived.DetailLevel
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("build multipart payload: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build multipart payload: %w", err)
	}

	log.Info().
		Int("images", len(images)).
		Int("promptLength", len(prompt)).
		Str("quality", string(opts.Quality)).
		Bool("useHyper", opts.UseHyper).
		Msg("Submitting generation request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var resp SubmitResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("submit generation: %w", err)
	}

	log.Info().
		Str("taskUuid", resp.UUID).
		Int("subJobs", len(resp.Jobs.UUIDs)).
		Msg("Generation request accepted")

	return &resp, nil
}

// Status polls the aggregate status of all sub-jobs under one subscription
// key.
func (c *Client) Status(ctx context.Context, subscriptionKey string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.postJSON(ctx, statusPath, map[string]string{"subscription_key": subscriptionKey}, &resp); err != nil {
		return nil, fmt.Errorf("check status: %w", err)
	}
	return &resp, nil
}

// Download fetches the downloadable asset listing for a completed task.
func (c *Client) Download(ctx context.Context, taskUUID string) (*DownloadResponse, error) {
	var resp DownloadResponse
	if err := c.postJSON(ctx, downloadPath, map[string]string{"task_uuid": taskUUID}, &resp); err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	return &resp, nil
}

// FetchAsset streams a result asset from its remote URL. The caller must
// close the returned body. Used by the gateway proxy and archive routes.
func (c *Client) FetchAsset(ctx context.Context, assetURL string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch asset: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("fetch asset: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// postJSON sends a JSON request to an API endpoint and decodes the reply.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

// do executes a request and decodes the JSON response, logging the exchange.
func (c *Client) do(req *http.Request, out any) error {
	startTime := time.Now()
	log.Debug().Str("method", req.Method).Str("url", req.URL.Path).Msg("Rodin API request")

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Rodin API response")
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Rodin API response")

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d (body: %s)", httpResp.StatusCode, truncate(string(raw), 200))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(raw), 200))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
