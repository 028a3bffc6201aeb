package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"sylph/internal/landmark"
)

const (
	// healthCacheTTL bounds how often Healthy hits the service.
	healthCacheTTL = 30 * time.Second
	// defaultMaxDim is the longest image edge sent to inference. Landmark
	// models run on small inputs; shipping full camera frames only costs
	// bandwidth and encode time.
	defaultMaxDim   = 640
	detectPath      = "/landmarks"
	healthPath      = "/health"
	uploadFieldName = "file"
	jpegQuality     = 85
)

// Client talks to the remote landmark inference service over HTTP. Frames go
// up as multipart JPEG uploads, landmark sets come back as JSON. Safe for
// concurrent use.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *log.Logger
	maxDim   int

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// inferenceResult is the service's detection response.
type inferenceResult struct {
	Face            []landmark.Point `json:"face"`
	Pose            []landmark.Point `json:"pose"`
	Confidence      float64          `json:"confidence"`
	InferenceTimeMs float64          `json:"inference_time_ms"`
	Device          string           `json:"device"`
}

// NewClient builds a client for the service at endpoint (scheme://host:port,
// no trailing slash).
func NewClient(endpoint string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
		maxDim:   defaultMaxDim,
	}
}

// Healthy probes the service's health endpoint, caching a positive answer
// for 30 seconds. A failed detect call invalidates the cache immediately.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthy && time.Since(c.checkedAt) < healthCacheTTL {
		return true
	}

	resp, err := c.client.Get(c.endpoint + healthPath)
	if err != nil {
		c.logger.Printf("[Provider] health check failed: %v", err)
		c.healthy = false
		return false
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Printf("[Provider] health check returned status %d", resp.StatusCode)
		c.healthy = false
		return false
	}
	c.healthy = true
	c.checkedAt = time.Now()
	return true
}

// Detect runs landmark inference on one image and returns the resulting
// frame stamped with seq and the current time. The image is downscaled
// before upload when it exceeds the client's edge limit.
func (c *Client) Detect(ctx context.Context, m image.Image, seq uint64) (*landmark.Frame, error) {
	if !c.Healthy() {
		return nil, fmt.Errorf("landmark service unavailable")
	}

	scaled := c.downscale(m)
	bounds := scaled.Bounds()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+uploadFieldName+`"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if err := jpeg.Encode(fw, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+detectPath, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		c.markUnhealthy()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("landmark inference failed: %s", string(msg))
	}

	var result inferenceResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &landmark.Frame{
		Face:       result.Face,
		Pose:       result.Pose,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Seq:        seq,
		Confidence: result.Confidence,
		Timestamp:  time.Now(),
	}, nil
}

func (c *Client) markUnhealthy() {
	c.mu.Lock()
	c.healthy = false
	c.mu.Unlock()
}

// downscale shrinks m so its longest edge fits maxDim, preserving aspect
// ratio. Images already within the limit pass through untouched.
func (c *Client) downscale(m image.Image) image.Image {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= c.maxDim || longest == 0 {
		return m
	}

	scale := float64(c.maxDim) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), m, b, draw.Src, nil)
	return dst
}
