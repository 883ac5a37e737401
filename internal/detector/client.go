// Package detector is an HTTP client for the face-check capability.
package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/enftaurus/vidyamitra/internal/presence"
	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// DefaultTimeout keeps a slow detector from holding a cycle past a few ticks.
const DefaultTimeout = 5 * time.Second

type request struct {
	Image string `json:"image"`
}

type response struct {
	FaceCount     int    `json:"face_count"`
	Status        string `json:"status"`
	MultipleFaces bool   `json:"multiple_faces"`
}

// Client posts one still image per call and decodes the face count.
type Client struct {
	url  string
	http *http.Client
}

// New creates a client for the face-check endpoint at url.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// DataURL encodes a frame the way browsers produce canvas snapshots.
func DataURL(f presence.Frame) string {
	mime := f.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Detect implements presence.Detector. Every failure is an
// ErrDetectorCallFailed.
func (c *Client) Detect(ctx context.Context, frame presence.Frame) (presence.Detection, error) {
	payload, err := json.Marshal(request{Image: DataURL(frame)})
	if err != nil {
		return presence.Detection{}, errclass.ErrDetectorCallFailed.WithMessagef("marshal: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return presence.Detection{}, errclass.ErrDetectorCallFailed.WithMessagef("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return presence.Detection{}, errclass.ErrDetectorCallFailed.WithMessagef("http request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return presence.Detection{}, errclass.ErrDetectorCallFailed.WithMessagef("http %d: %s", resp.StatusCode, string(body))
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return presence.Detection{}, errclass.ErrDetectorCallFailed.WithMessagef("decode: %v", err)
	}
	if out.FaceCount < 0 {
		return presence.Detection{}, errclass.ErrDetectorCallFailed.WithMessagef("negative face count %d", out.FaceCount)
	}

	status := out.Status
	if status == "" && out.MultipleFaces {
		status = model.DetectorMultipleFaces
	}
	return presence.Detection{FaceCount: out.FaceCount, Status: status}, nil
}

// Ping checks that the endpoint accepts connections. Any HTTP response
// counts; the endpoint only serves POST.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return errclass.ErrDetectorCallFailed.WithMessagef("build request: %v", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errclass.ErrDetectorCallFailed.WithMessagef("http request: %v", err)
	}
	resp.Body.Close()
	return nil
}

var _ presence.Detector = (*Client)(nil)
