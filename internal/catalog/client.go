// Package catalog talks to the storefront admin API: collection listing,
// product listing, and product-to-collection membership writes.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ecomstack/shelfsort/internal/common"
	"github.com/ecomstack/shelfsort/internal/service"
)

// Collection is one custom or smart collection as listed by the catalog.
type Collection struct {
	ID     string
	Handle string
	Title  string
}

// Collect is a single product-to-collection membership record.
type Collect struct {
	ID           string
	ProductID    string
	CollectionID string
}

// Product is the subset of catalog product fields the pipeline needs.
type Product struct {
	ID          string
	Title       string
	Description string
}

// Client is an HTTP client for the storefront admin REST API.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	shopDomain  string
	accessToken string
	apiVersion  string
	pageDelay   time.Duration
	retryOpts   service.RetryOptions
}

// Config holds the catalog connection settings.
type Config struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
	PageDelay   time.Duration
}

const defaultPageSize = 250

// NewClient creates a catalog client. The shop domain may be given with
// or without a scheme.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	domain := strings.TrimSpace(cfg.ShopDomain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.Trim(domain, "/")

	if domain == "" {
		return nil, fmt.Errorf("%w: shop domain (example: your-store.myshopify.com)", common.ErrMissingConfig)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: catalog access token", common.ErrMissingConfig)
	}

	version := cfg.APIVersion
	if version == "" {
		version = "2024-10"
	}

	pageDelay := cfg.PageDelay
	if pageDelay <= 0 {
		pageDelay = 200 * time.Millisecond
	}

	return &Client{
		shopDomain:  domain,
		accessToken: cfg.AccessToken,
		apiVersion:  version,
		pageDelay:   pageDelay,
		logger:      logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// ListCollections returns all custom and smart collections merged into
// one flat list, traversing every page of each listing.
func (c *Client) ListCollections(ctx context.Context) ([]Collection, error) {
	var all []Collection

	for _, resource := range []string{"custom_collections", "smart_collections"} {
		pageURL := c.endpoint(resource + ".json?limit=" + strconv.Itoa(defaultPageSize))

		for pageURL != "" {
			var payload struct {
				CustomCollections []collectionJSON `json:"custom_collections"`
				SmartCollections  []collectionJSON `json:"smart_collections"`
			}

			next, err := c.getJSON(ctx, pageURL, &payload)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", resource, err)
			}

			for _, raw := range append(payload.CustomCollections, payload.SmartCollections...) {
				all = append(all, Collection{
					ID:     strconv.FormatInt(raw.ID, 10),
					Handle: raw.Handle,
					Title:  raw.Title,
				})
			}

			pageURL = next
			if pageURL != "" {
				if err := sleepCtx(ctx, c.pageDelay); err != nil {
					return nil, err
				}
			}
		}
	}

	c.logger.Debug("listed catalog collections", "count", len(all))
	return all, nil
}

// ListProducts returns all products updated since the given time.
func (c *Client) ListProducts(ctx context.Context, updatedSince time.Time) ([]Product, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(defaultPageSize))
	query.Set("updated_at_min", updatedSince.UTC().Format(time.RFC3339))

	pageURL := c.endpoint("products.json?" + query.Encode())

	var products []Product
	for pageURL != "" {
		var payload struct {
			Products []productJSON `json:"products"`
		}

		next, err := c.getJSON(ctx, pageURL, &payload)
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}

		for _, raw := range payload.Products {
			products = append(products, Product{
				ID:          strconv.FormatInt(raw.ID, 10),
				Title:       raw.Title,
				Description: raw.BodyHTML,
			})
		}

		pageURL = next
		if pageURL != "" {
			if err := sleepCtx(ctx, c.pageDelay); err != nil {
				return nil, err
			}
		}
	}

	return products, nil
}

// ListCollects returns every membership record for the product,
// traversing all pages.
func (c *Client) ListCollects(ctx context.Context, productID string) ([]Collect, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(defaultPageSize))
	query.Set("product_id", productID)

	pageURL := c.endpoint("collects.json?" + query.Encode())

	var collects []Collect
	for pageURL != "" {
		var payload struct {
			Collects []collectJSON `json:"collects"`
		}

		next, err := c.getJSON(ctx, pageURL, &payload)
		if err != nil {
			return nil, fmt.Errorf("failed to list collects for product %s: %w", productID, err)
		}

		for _, raw := range payload.Collects {
			collects = append(collects, Collect{
				ID:           strconv.FormatInt(raw.ID, 10),
				ProductID:    strconv.FormatInt(raw.ProductID, 10),
				CollectionID: strconv.FormatInt(raw.CollectionID, 10),
			})
		}

		pageURL = next
		if pageURL != "" {
			if err := sleepCtx(ctx, c.pageDelay); err != nil {
				return nil, err
			}
		}
	}

	return collects, nil
}

// AddCollect creates one product-to-collection membership.
func (c *Client) AddCollect(ctx context.Context, productID, collectionID string) error {
	pid, err := strconv.ParseInt(productID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid product id %q: %w", productID, err)
	}
	cid, err := strconv.ParseInt(collectionID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid collection id %q: %w", collectionID, err)
	}

	body, err := json.Marshal(map[string]any{
		"collect": map[string]int64{
			"product_id":    pid,
			"collection_id": cid,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal collect: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("collects.json"), strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req); err != nil {
		return fmt.Errorf("failed to add product %s to collection %s: %w", productID, collectionID, err)
	}

	return nil
}

// DeleteCollect removes one membership record by its collect id.
func (c *Client) DeleteCollect(ctx context.Context, collectID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("collects/"+collectID+".json"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if err := c.do(req); err != nil {
		return fmt.Errorf("failed to delete collect %s: %w", collectID, err)
	}

	return nil
}

type collectionJSON struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

type collectJSON struct {
	ID           int64 `json:"id"`
	ProductID    int64 `json:"product_id"`
	CollectionID int64 `json:"collection_id"`
}

type productJSON struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	BodyHTML string `json:"body_html"`
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("https://%s/admin/api/%s/%s", c.shopDomain, c.apiVersion, path)
}

// getJSON fetches one page, decodes it into out, and returns the URL of
// the next page from the Link header (empty when done). Rate-limit
// responses are retried with backoff.
func (c *Client) getJSON(ctx context.Context, pageURL string, out any) (string, error) {
	var next string

	err := common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w (status %d)", common.ErrCatalogRateLimit, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return &common.RetryableError{
				Err:       fmt.Errorf("catalog API error (status %d): %s", resp.StatusCode, string(body)),
				Retryable: false,
			}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return &common.RetryableError{
				Err:       fmt.Errorf("failed to decode response: %w", err),
				Retryable: false,
			}
		}

		next = nextPageURL(resp.Header.Get("Link"))
		return nil
	}, c.retryOpts)

	return next, err
}

// do executes a write request and checks for a 2xx response.
func (c *Client) do(req *http.Request) error {
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w (status %d)", common.ErrCatalogRateLimit, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("catalog API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// nextPageURL extracts the rel="next" URL from a Link header.
func nextPageURL(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if strings.TrimSpace(section[1]) != `rel="next"` {
			continue
		}
		link := strings.TrimSpace(section[0])
		link = strings.TrimPrefix(link, "<")
		link = strings.TrimSuffix(link, ">")
		return link
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
