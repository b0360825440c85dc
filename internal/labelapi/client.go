package labelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openpref/preflearn/internal/collector"
	"github.com/openpref/preflearn/internal/segment"
)

// #region client

// Client talks to a labeling server over HTTP and implements
// collector.LabelBackend for the human collector.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a labeling client for the given base URL, e.g.
// http://localhost:8089.
func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Dispatch posts a comparison for human labeling.
func (c *Client) Dispatch(ctx context.Context, req collector.LabelRequest) error {
	payload := ComparisonPayload{
		ID:        req.ComparisonID,
		Left:      toSegmentPayload(req.Left),
		Right:     toSegmentPayload(req.Right),
		CreatedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode comparison: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/comparisons", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("dispatch comparison %s: %s", req.ComparisonID, readErr(resp))
	}
	return nil
}

// Poll drains the verdicts submitted since the last poll.
func (c *Client) Poll(ctx context.Context) ([]collector.LabelResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/verdicts", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll verdicts: %s", readErr(resp))
	}
	var out struct {
		Verdicts []Verdict `json:"verdicts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode verdicts: %w", err)
	}
	responses := make([]collector.LabelResponse, 0, len(out.Verdicts))
	for _, v := range out.Verdicts {
		responses = append(responses, collector.LabelResponse{
			ComparisonID: v.ComparisonID,
			Label:        collector.Label(v.Label),
		})
	}
	return responses, nil
}

// PendingCount reports how many comparisons still await a verdict.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/comparisons/pending", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pending count: %s", readErr(resp))
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode pending count: %w", err)
	}
	return out.Count, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("labeling server %s %s: %w", method, path, err)
	}
	return resp, nil
}

func toSegmentPayload(seg *segment.Segment) SegmentPayload {
	return SegmentPayload{
		ID:       seg.ID,
		EnvID:    seg.EnvID,
		ObsShape: seg.ObsShape,
		Steps:    seg.Steps,
	}
}

func readErr(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Sprintf("%s (%s)", body.Error, resp.Status)
	}
	return resp.Status
}

var _ collector.LabelBackend = (*Client)(nil)

// #endregion client
