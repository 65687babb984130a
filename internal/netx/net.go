// Package netx fetches objects through presigned object-store URLs.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// MaxDownloadSize caps the body accepted by Download.
const MaxDownloadSize = 64 << 20

// httpClient is shared by all downloads.
var httpClient = &http.Client{}

// Download GETs url and returns the body. Any status other than 200 is an
// error carrying the status and up to 1 KiB of the response body.
func Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxDownloadSize {
		return nil, fmt.Errorf("download failed: body exceeds %d bytes", MaxDownloadSize)
	}
	return body, nil
}
