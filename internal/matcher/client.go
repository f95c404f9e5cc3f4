// Package matcher talks to the face service that detects faces in class
// photos and compares them with students' reference images.
package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultServiceURL = "http://localhost:5000"
	defaultTimeout    = 30 * time.Second
)

// Client is an HTTP client for the face service.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithRateLimit caps requests per second to the face service. Zero or
// negative means unlimited.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
		}
	}
}

// NewClient creates a face service client.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Detection is one face found by the face service.
type Detection struct {
	FaceIndex int       `json:"face_index"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetScore  float64   `json:"det_score"`
}

type detectResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []Detection `json:"faces"`
}

// VerifyResult is the outcome of comparing two face images.
type VerifyResult struct {
	Similarity float64 // 0-100
	Verified   bool
	Distance   float64
	Model      string
}

type verifyResponse struct {
	Similarity *float64 `json:"similarity"`
	Verified   bool     `json:"verified"`
	Distance   *float64 `json:"distance"`
	Model      string   `json:"model"`
}

// imagePart is one file of a multipart request.
type imagePart struct {
	field string
	name  string
	data  []byte
}

// postMultipartImages constructs a multipart form with the image parts and posts it to the given endpoint.
// Each part carries an explicit Content-Type header based on magic byte detection.
func (c *Client) postMultipartImages(ctx context.Context, endpoint string, parts ...imagePart) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.name))
		h.Set("Content-Type", detectMIMEType(p.data))
		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(p.data); err != nil {
			return nil, fmt.Errorf("failed to write image data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// Detect finds faces in an image.
func (c *Client) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	body, err := c.postMultipartImages(ctx, "/faces/detect", imagePart{"file", "photo.jpg", imageData})
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	for i, f := range resp.Faces {
		if len(f.BBox) != 4 {
			return nil, fmt.Errorf("face %d: bbox has %d values, expected 4", i, len(f.BBox))
		}
	}
	return resp.Faces, nil
}

// Verify compares a face crop with a reference image.
func (c *Client) Verify(ctx context.Context, face, reference []byte) (VerifyResult, error) {
	body, err := c.postMultipartImages(ctx, "/faces/verify",
		imagePart{"face", "face.jpg", face},
		imagePart{"reference", "reference.jpg", reference},
	)
	if err != nil {
		return VerifyResult{}, err
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return VerifyResult{}, fmt.Errorf("failed to parse response: %w", err)
	}

	result := VerifyResult{Verified: resp.Verified, Model: resp.Model}
	switch {
	case resp.Similarity != nil:
		result.Similarity = *resp.Similarity
		if resp.Distance != nil {
			result.Distance = *resp.Distance
		}
	case resp.Distance != nil:
		// Cosine distance to a 0-100 similarity.
		result.Distance = *resp.Distance
		result.Similarity = (1 - *resp.Distance) * 100
	default:
		return VerifyResult{}, errors.New("response has neither similarity nor distance")
	}
	return result, nil
}

// Health checks that the face service is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
