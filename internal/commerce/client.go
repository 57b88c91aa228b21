// Package commerce is a client for the commerce backend's store API. The
// backend owns the catalog, pricing, inventory and cart persistence; the
// storefront only reads from it and forwards cart mutations.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"storefront-service/internal/entity"
)

const publishableKeyHeader = "x-publishable-api-key"

// productFields asks the backend to compute variant prices and embed the collection.
const productFields = "*variants.calculated_price,*collection"

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("commerce backend returned %d: %s", e.StatusCode, e.Message)
}

// ErrNoCart is returned when a cart call succeeds but the body carries no cart.
var ErrNoCart = errors.New("commerce backend returned no cart")

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL        string
	publishableKey string
	httpClient     *http.Client
}

// NewClient creates a store API client. A nil httpClient gets a client with a
// 10 second timeout.
func NewClient(baseURL, publishableKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:        baseURL,
		publishableKey: publishableKey,
		httpClient:     httpClient,
	}
}

// ProductQuery filters a product listing. Empty filters list everything.
type ProductQuery struct {
	RegionID      string
	CollectionIDs []string
	CategoryIDs   []string
	Limit         int
	Offset        int
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	v.Set("fields", productFields)
	if q.RegionID != "" {
		v.Set("region_id", q.RegionID)
	}
	for _, id := range q.CollectionIDs {
		v.Add("collection_id[]", id)
	}
	for _, id := range q.CategoryIDs {
		v.Add("category_id[]", id)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// ListProducts returns one page of products and the total count.
func (c *Client) ListProducts(ctx context.Context, q ProductQuery) ([]entity.Product, int, error) {
	var resp struct {
		Products []entity.Product `json:"products"`
		Count    int              `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/store/products", q.values(), nil, &resp); err != nil {
		return nil, 0, errors.Wrap(err, "list products")
	}
	return resp.Products, resp.Count, nil
}

// ListAllProducts pages through the listing until every product was read.
func (c *Client) ListAllProducts(ctx context.Context, q ProductQuery) ([]entity.Product, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	var all []entity.Product
	for {
		page, count, err := c.ListProducts(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) == 0 || len(all) >= count {
			return all, nil
		}
		q.Offset += len(page)
	}
}

func (c *Client) ListRegions(ctx context.Context) ([]entity.Region, error) {
	var resp struct {
		Regions []entity.Region `json:"regions"`
	}
	if err := c.do(ctx, http.MethodGet, "/store/regions", nil, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "list regions")
	}
	return resp.Regions, nil
}

type cartResponse struct {
	Cart *entity.Cart `json:"cart"`
}

func requireCart(cart *entity.Cart) (*entity.Cart, error) {
	if cart == nil {
		return nil, ErrNoCart
	}
	return cart, nil
}

func (c *Client) CreateCart(ctx context.Context, regionID string) (*entity.Cart, error) {
	var resp cartResponse
	body := map[string]string{"region_id": regionID}
	if err := c.do(ctx, http.MethodPost, "/store/carts", nil, body, &resp); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return requireCart(resp.Cart)
}

// RetrieveCart returns the cart, or nil without error when it does not exist.
func (c *Client) RetrieveCart(ctx context.Context, cartID string) (*entity.Cart, error) {
	if cartID == "" {
		return nil, nil
	}
	var resp cartResponse
	err := c.do(ctx, http.MethodGet, "/store/carts/"+url.PathEscape(cartID), nil, nil, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "retrieve cart %s", cartID)
	}
	return resp.Cart, nil
}

func (c *Client) AddLineItem(ctx context.Context, cartID, variantID string, quantity int, metadata map[string]interface{}) (*entity.Cart, error) {
	body := struct {
		VariantID string                 `json:"variant_id"`
		Quantity  int                    `json:"quantity"`
		Metadata  map[string]interface{} `json:"metadata,omitempty"`
	}{variantID, quantity, metadata}

	var resp cartResponse
	if err := c.do(ctx, http.MethodPost, linePath(cartID, ""), nil, body, &resp); err != nil {
		return nil, errors.Wrapf(err, "add variant %s to cart %s", variantID, cartID)
	}
	return requireCart(resp.Cart)
}

func (c *Client) UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*entity.Cart, error) {
	body := map[string]int{"quantity": quantity}

	var resp cartResponse
	if err := c.do(ctx, http.MethodPost, linePath(cartID, lineID), nil, body, &resp); err != nil {
		return nil, errors.Wrapf(err, "update line %s quantity", lineID)
	}
	return requireCart(resp.Cart)
}

func (c *Client) UpdateLineItemMetadata(ctx context.Context, cartID, lineID string, metadata map[string]interface{}) (*entity.Cart, error) {
	body := map[string]interface{}{"metadata": metadata}

	var resp cartResponse
	if err := c.do(ctx, http.MethodPost, linePath(cartID, lineID), nil, body, &resp); err != nil {
		return nil, errors.Wrapf(err, "update line %s metadata", lineID)
	}
	return requireCart(resp.Cart)
}

func (c *Client) DeleteLineItem(ctx context.Context, cartID, lineID string) (*entity.Cart, error) {
	var resp struct {
		Deleted bool         `json:"deleted"`
		Parent  *entity.Cart `json:"parent"`
	}
	if err := c.do(ctx, http.MethodDelete, linePath(cartID, lineID), nil, nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "delete line %s", lineID)
	}
	return requireCart(resp.Parent)
}

func linePath(cartID, lineID string) string {
	p := "/store/carts/" + url.PathEscape(cartID) + "/line-items"
	if lineID != "" {
		p += "/" + url.PathEscape(lineID)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.publishableKey != "" {
		req.Header.Set(publishableKeyHeader, c.publishableKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(raw)
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
