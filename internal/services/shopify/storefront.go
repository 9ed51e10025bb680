package shopify

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

	"codform/internal/logger"
)

// StorefrontClient talks to the shop's public AJAX API (/products/*.js,
// /cart*.js) on behalf of one shopper session.
type StorefrontClient struct {
	baseURL    string
	cartCookie string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewStorefrontClient builds a client for the storefront rooted at baseURL,
// e.g. "https://my-shop.myshopify.com".
func NewStorefrontClient(baseURL string, logger *logger.Logger) *StorefrontClient {
	return &StorefrontClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// WithCartCookie forwards the shopper's cart token so cart calls act on their
// cart rather than an anonymous one.
func (c *StorefrontClient) WithCartCookie(token string) *StorefrontClient {
	clone := *c
	clone.cartCookie = strings.TrimSpace(token)
	return &clone
}

// Product fetches /products/:handle.js.
func (c *StorefrontClient) Product(ctx context.Context, handle string) (*StorefrontProduct, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("product handle is empty")
	}
	var product StorefrontProduct
	if err := c.doJSON(ctx, http.MethodGet, "/products/"+url.PathEscape(handle)+".js", nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// Cart fetches /cart.js.
func (c *StorefrontClient) Cart(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := c.doJSON(ctx, http.MethodGet, "/cart.js", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddToCart posts to /cart/add.js.
func (c *StorefrontClient) AddToCart(ctx context.Context, lines []CartLine) (*CartAddResult, error) {
	var result CartAddResult
	body := map[string]any{"items": lines}
	if err := c.doJSON(ctx, http.MethodPost, "/cart/add.js", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateCart posts quantity updates keyed by variant id to /cart/update.js.
func (c *StorefrontClient) UpdateCart(ctx context.Context, updates map[int64]int) (*Cart, error) {
	payload := make(map[string]int, len(updates))
	for id, qty := range updates {
		payload[fmt.Sprintf("%d", id)] = qty
	}
	var cart Cart
	if err := c.doJSON(ctx, http.MethodPost, "/cart/update.js", map[string]any{"updates": payload}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ClearCart posts to /cart/clear.js.
func (c *StorefrontClient) ClearCart(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := c.doJSON(ctx, http.MethodPost, "/cart/clear.js", map[string]any{}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *StorefrontClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cartCookie != "" {
		req.AddCookie(&http.Cookie{Name: "cart", Value: c.cartCookie})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("storefront %s %s failed: %d - %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
