package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/calamars-bot/calamars-go/internal/config"
	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
)

// maxResponseBytes caps how much of a service response is read.
const maxResponseBytes = 1 << 20

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: config.NLURequest}
}

// getJSON performs a GET and decodes the body into out. Non-2xx responses
// become *errors.APIError; the raw body is returned for Result.Raw.
func getJSON(ctx context.Context, client *http.Client, service, url string, header http.Header, out any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", service, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", service, domerrors.RedactURL(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domerrors.NewAPIError(service, resp.StatusCode, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", service, err)
		}
	}
	return body, nil
}

func decodeRaw(body []byte) map[string]any {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	return raw
}
