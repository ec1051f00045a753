package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"vetting/pkg/types"
)

// jsonClient performs authenticated JSON calls against a provider API and
// normalises failures into *types.ProviderError.
type jsonClient struct {
	providerID string
	endpoint   string
	httpClient *http.Client
	authorize  func(req *http.Request)
}

func (c *jsonClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := strings.TrimRight(c.endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.transportError(err)
	}

	if kind := statusError(resp.StatusCode); kind != nil {
		return types.NewProviderError(c.providerID, kind,
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode),
			errors.New(strings.TrimSpace(string(respBody))))
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return types.NewProviderError(c.providerID, types.ErrProviderBadResponse, "failed to decode response", err)
	}

	return nil
}

func (c *jsonClient) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewProviderError(c.providerID, types.ErrProviderTimeout, "request timed out", err)
	}
	return types.NewProviderError(c.providerID, types.ErrProviderUnavailable, "request failed", err)
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return types.ErrProviderAuth
	case code == http.StatusTooManyRequests:
		return types.ErrProviderRateLimit
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return types.ErrProviderTimeout
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return types.ErrInvalidCandidateData
	case code >= 500:
		return types.ErrProviderUnavailable
	}
	return types.ErrProviderBadResponse
}

func unsupported(providerID string, checkType types.CheckType) error {
	return fmt.Errorf("%w: provider %s has no package for %s", types.ErrUnsupportedCheckType, providerID, checkType)
}

func invalidWebhook(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidWebhook, fmt.Sprintf(format, args...))
}

const dateLayout = "2006-01-02"
