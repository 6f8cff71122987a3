// ABOUTME: Shared outbound REST client for adapter implementations
// ABOUTME: Translates transport and non-2xx failures into the core error taxonomy
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
)

// outboundTimeout bounds every third-party call; expiry surfaces as a
// third-party API error like any other transport failure.
const outboundTimeout = 30 * time.Second

type restClient struct {
	httpClient *http.Client
}

func newRESTClient() *restClient {
	return &restClient{
		httpClient: &http.Client{Timeout: outboundTimeout},
	}
}

// doJSON sends an optional JSON body and decodes a JSON response into out
// when out is non-nil. Non-success statuses become structured errors: 401
// and 403 are credential failures, everything else carries the status and
// raw body.
func (c *restClient) doJSON(ctx context.Context, method, rawURL string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req, out)
}

// doForm sends a URL-encoded form body.
func (c *restClient) doForm(ctx context.Context, method, rawURL string, headers map[string]string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req, out)
}

func (c *restClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return crmerr.ThirdParty(0, "").Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return crmerr.ThirdParty(resp.StatusCode, "").Wrap(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return crmerr.Auth("credential rejected by platform")
	case resp.StatusCode >= 300:
		return crmerr.ThirdParty(resp.StatusCode, string(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
