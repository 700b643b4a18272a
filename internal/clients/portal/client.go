// Package portal is an HTTP client for the learning portal's
// recording and speech endpoints. It satisfies the pipeline's
// uploader and assessor interfaces, so a session can run against a
// remote portal instead of the in-process services.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/pipeline"
)

// TokenSource yields the bearer token for the next request. It is
// consulted on every call so a refreshed token is picked up without
// rebuilding the client.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed token, mostly for tests.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) { return string(t), nil }

type Client struct {
	log     *logger.Logger
	baseURL string
	hc      *http.Client
	tokens  TokenSource
}

func NewClient(log *logger.Logger, baseURL string, tokens TokenSource) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("portal base url required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source required")
	}
	return &Client{
		log:     log.With("client", "Portal"),
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 2 * time.Minute},
		tokens:  tokens,
	}, nil
}

type uploadResponse struct {
	AudioURL   string `json:"audio_url"`
	ProgressID int64  `json:"progress_id"`
}

// UploadRecording posts the clip as multipart form data and returns
// the durable URL plus progress id the portal assigned.
func (c *Client) UploadRecording(ctx context.Context, itemID uuid.UUID, clip capture.Clip) (*pipeline.UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("item_id", itemID.String()); err != nil {
		return nil, fmt.Errorf("write item_id field: %w", err)
	}
	if err := mw.WriteField("duration_ms", fmt.Sprintf("%d", clip.Duration.Milliseconds())); err != nil {
		return nil, fmt.Errorf("write duration_ms field: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, itemID.String()))
	h.Set("Content-Type", clip.MimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, fmt.Errorf("write clip data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/recordings", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.AudioURL == "" {
		return nil, fmt.Errorf("portal returned no audio url")
	}
	return &pipeline.UploadResult{AudioURL: out.AudioURL, ProgressID: out.ProgressID}, nil
}

type assessRequest struct {
	AudioURL   string `json:"audio_url"`
	TargetText string `json:"target_text"`
}

// AssessSpeech asks the portal to score the stored recording against
// the item's target text.
func (c *Client) AssessSpeech(ctx context.Context, audioURL, text string) (*pipeline.Assessment, error) {
	payload, err := json.Marshal(assessRequest{AudioURL: audioURL, TargetText: text})
	if err != nil {
		return nil, fmt.Errorf("marshal assess request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/speech/assess", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out pipeline.Assessment
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve access token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("portal request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read portal response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("Portal request failed", "status", resp.StatusCode, "path", req.URL.Path)
		return fmt.Errorf("portal returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode portal response: %w", err)
	}
	return nil
}
