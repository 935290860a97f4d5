package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/arborcal/calagg/internal/model"
)

// HTTPGet performs an HTTP request with the caller-supplied method (GET
// for a plain feed, or a verb such as REPORT or PROPFIND carrying a
// request body) and classifies the outcome into the
// adapter error taxonomy. Shared by the ical and caldav reference
// adapters — both are thin HTTP clients over the same failure modes.
func HTTPGet(ctx context.Context, client *http.Client, method, url string, body io.Reader, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrProtocol, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", model.ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", model.ErrNetwork, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d", model.ErrProtocol, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}
	return data, nil
}
