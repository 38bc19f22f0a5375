package woo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Fetcher drives paginated retrieval of a full record set. It holds no
// cursor state across failures: a failed run is restarted from page one,
// which is safe because reconciliation is idempotent.
type Fetcher struct {
	client   *Client
	pageSize int
}

// NewFetcher creates a fetcher using the client's configured page size.
func NewFetcher(client *Client) *Fetcher {
	size := client.cfg.PageSize
	if size <= 0 || size > 100 {
		size = 100
	}
	return &Fetcher{client: client, pageSize: size}
}

// FetchProducts streams every product page to fn. Fetching stops at the
// first empty page, or when the source keeps returning the same page
// regardless of the page parameter.
func (f *Fetcher) FetchProducts(ctx context.Context, fn func(page []Product) error) error {
	var prevFirstID int64
	for page := 1; ; page++ {
		var items []Product
		if err := f.client.Get(ctx, "/products", f.pageQuery(page, nil, nil), &items); err != nil {
			return fmt.Errorf("fetch products page %d: %w", page, err)
		}
		if len(items) == 0 {
			return nil
		}
		if items[0].ID == prevFirstID {
			return nil
		}
		prevFirstID = items[0].ID

		if err := fn(items); err != nil {
			return err
		}
		if len(items) < f.pageSize {
			return nil
		}
	}
}

// FetchVariations streams every variation page of one variable product.
func (f *Fetcher) FetchVariations(ctx context.Context, productID int64, fn func(page []Variation) error) error {
	path := fmt.Sprintf("/products/%d/variations", productID)
	var prevFirstID int64
	for page := 1; ; page++ {
		var items []Variation
		if err := f.client.Get(ctx, path, f.pageQuery(page, nil, nil), &items); err != nil {
			return fmt.Errorf("fetch variations page %d for product %d: %w", page, productID, err)
		}
		if len(items) == 0 {
			return nil
		}
		if items[0].ID == prevFirstID {
			return nil
		}
		prevFirstID = items[0].ID

		if err := fn(items); err != nil {
			return err
		}
		if len(items) < f.pageSize {
			return nil
		}
	}
}

// FetchOrders streams every order page within the date range to fn.
// Zero times leave the corresponding bound open.
func (f *Fetcher) FetchOrders(ctx context.Context, after, before time.Time, fn func(page []Order) error) error {
	var prevFirstID int64
	for page := 1; ; page++ {
		var items []Order
		if err := f.client.Get(ctx, "/orders", f.pageQuery(page, &after, &before), &items); err != nil {
			return fmt.Errorf("fetch orders page %d: %w", page, err)
		}
		if len(items) == 0 {
			return nil
		}
		if items[0].ID == prevFirstID {
			return nil
		}
		prevFirstID = items[0].ID

		if err := fn(items); err != nil {
			return err
		}
		if len(items) < f.pageSize {
			return nil
		}
	}
}

func (f *Fetcher) pageQuery(page int, after, before *time.Time) url.Values {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(f.pageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("orderby", "id")
	q.Set("order", "asc")
	if after != nil && !after.IsZero() {
		q.Set("after", after.UTC().Format(time.RFC3339))
	}
	if before != nil && !before.IsZero() {
		q.Set("before", before.UTC().Format(time.RFC3339))
	}
	return q
}
