package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codform/internal/storefront/formconfig"
)

const defaultTimeout = 15 * time.Second

// Client calls the backend on behalf of the storefront runtime.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// FormConfig fetches GET /api/public-form-config?shop=.
func (c *Client) FormConfig(ctx context.Context, shop string) (*formconfig.Response, error) {
	endpoint, err := url.JoinPath(c.baseURL, "api", "public-form-config")
	if err != nil {
		return nil, err
	}
	endpoint += "?" + url.Values{"shop": {shop}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkout: form config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("checkout: form config status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("checkout: read form config: %w", err)
	}
	return formconfig.Parse(raw)
}

// CreateOrder posts the submission as multipart form data. Fraud blocks
// and other rejections come back as a Result; only transport failures and
// unreadable responses are errors.
func (c *Client) CreateOrder(ctx context.Context, order *Request) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := order.WriteMultipart(mw); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(c.baseURL, "api", "create-order")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkout: create order: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("checkout: read order response: %w", err)
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("checkout: create order status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, fmt.Errorf("checkout: decode order response: %w", err)
	}
	return &result, nil
}

func drainError(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(raw))
}
