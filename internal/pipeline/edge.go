package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EdgeClient calls a serverless edge function over HTTP. Transcription and
// summarization are both exposed this way; the only difference is the URL and
// the response field each one fills.
type EdgeClient struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

// NewEdgeClient constructs a client for the function at url.
func NewEdgeClient(url string, timeout time.Duration) *EdgeClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &EdgeClient{
		client:  &http.Client{Timeout: timeout},
		url:     url,
		timeout: timeout,
	}
}

type edgeRequest struct {
	RecordingID string `json:"recordingId"`
}

type edgeResponse struct {
	Text    string `json:"text"`
	Summary string `json:"summary"`
	Error   string `json:"error"`
}

func (c *EdgeClient) invoke(ctx context.Context, recordingID string) (edgeResponse, error) {
	body, err := json.Marshal(edgeRequest{RecordingID: recordingID})
	if err != nil {
		return edgeResponse{}, fmt.Errorf("encode edge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return edgeResponse{}, fmt.Errorf("build edge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return edgeResponse{}, fmt.Errorf("call edge function: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return edgeResponse{}, fmt.Errorf("read edge response: %w", err)
	}

	var decoded edgeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return edgeResponse{}, fmt.Errorf("decode edge response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if decoded.Error != "" {
			return edgeResponse{}, fmt.Errorf("edge function returned %d: %s", resp.StatusCode, decoded.Error)
		}
		return edgeResponse{}, fmt.Errorf("edge function returned %d", resp.StatusCode)
	}

	return decoded, nil
}

// Transcribe implements the transcription stage.
func (c *EdgeClient) Transcribe(ctx context.Context, recordingID string) (string, error) {
	resp, err := c.invoke(ctx, recordingID)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Summarize implements the summarization stage.
func (c *EdgeClient) Summarize(ctx context.Context, recordingID string) (string, error) {
	resp, err := c.invoke(ctx, recordingID)
	if err != nil {
		return "", err
	}
	return resp.Summary, nil
}
