package embedder

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultMaxImageBytes caps the download size per candidate image.
const defaultMaxImageBytes = 10 << 20

// imageFetcher downloads candidate images and base64-encodes them for the
// embeddings request body.
type imageFetcher struct {
	// client is the HTTP client used for image downloads.
	client *http.Client
	// maxBytes caps the bytes read per image.
	maxBytes int64
}

// newImageFetcher constructs an imageFetcher with the given size cap
// (0 = default).
func newImageFetcher(maxBytes int64) *imageFetcher {
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	return &imageFetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: maxBytes,
	}
}

// fetch downloads the image at url and returns it base64-encoded. Responses
// that are not images, exceed the size cap, or fail to download are errors —
// the caller decides whether to skip or abort.
func (f *imageFetcher) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("not an image: content type %q", ct)
	}

	// Read one byte past the cap to distinguish "exactly at cap" from "over".
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return "", fmt.Errorf("image exceeds %d byte cap", f.maxBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty response body")
	}

	return base64.StdEncoding.EncodeToString(data), nil
}
