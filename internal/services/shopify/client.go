package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"codform/internal/logger"
)

const adminAPIVersion = "2023-10"

// AdminClient calls the Admin REST API with a shop's offline access token.
type AdminClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *logger.Logger
}

func NewAdminClient(shopDomain, accessToken string, logger *logger.Logger) *AdminClient {
	return &AdminClient{
		baseURL:     "https://" + normalizeShopDomain(shopDomain),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL points the client at another host (tests, proxies).
func (c *AdminClient) WithBaseURL(baseURL string) *AdminClient {
	clone := *c
	clone.baseURL = strings.TrimRight(baseURL, "/")
	return &clone
}

// CreateOrder creates a pending cash-on-delivery order.
func (c *AdminClient) CreateOrder(ctx context.Context, input OrderInput) (*AdminOrder, error) {
	var resp struct {
		Order AdminOrder `json:"order"`
	}
	payload := struct {
		Order OrderInput `json:"order"`
	}{Order: input}

	if err := c.do(ctx, http.MethodPost, "/orders.json", payload, &resp, http.StatusCreated, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// GetShopInfo fetches shop information
func (c *AdminClient) GetShopInfo(ctx context.Context) (*Shop, error) {
	var shopResp struct {
		Shop Shop `json:"shop"`
	}
	if err := c.do(ctx, http.MethodGet, "/shop.json", nil, &shopResp, http.StatusOK); err != nil {
		return nil, err
	}
	return &shopResp.Shop, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, in, out any, okStatus ...int) error {
	url := fmt.Sprintf("%s/admin/api/%s%s", c.baseURL, adminAPIVersion, path)

	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Add authentication header
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	accepted := false
	for _, s := range okStatus {
		if resp.StatusCode == s {
			accepted = true
			break
		}
	}
	if !accepted {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed: %d - %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// IsShopDomain reports whether shop is a bare *.myshopify.com host name.
func IsShopDomain(shop string) bool {
	return shopDomainPattern.MatchString(shop)
}

// normalizeShopDomain accepts "my-shop", "my-shop.myshopify.com" or a full URL.
func normalizeShopDomain(shop string) string {
	shop = strings.TrimSpace(strings.ToLower(shop))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	shop = strings.TrimRight(shop, "/")
	if !strings.Contains(shop, ".") {
		shop += ".myshopify.com"
	}
	return shop
}

// NormalizeShopDomain is exported for callers keying data by shop.
func NormalizeShopDomain(shop string) string {
	return normalizeShopDomain(shop)
}
