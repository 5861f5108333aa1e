package spotify

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// Page is the wire shape of a paginated Spotify response. Total is the
// advertised size of the whole sequence; pages that omit it leave the
// pre-decode value in place.
type Page[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

// Paginator walks a paginated endpoint page by page, following the opaque
// next URL until it is absent. The sequence is lazy, finite, and
// non-restartable; items come back in upstream order with no deduplication.
type Paginator[T any] struct {
	gw      Requester
	logger  *log.Logger
	next    string
	seen    map[string]struct{}
	total   int
	first   bool
	yielded int
	done    bool
}

// NewPaginator creates a paginator starting at firstURL. All requests go
// through the gateway; next URLs from responses are followed verbatim.
func NewPaginator[T any](gw Requester, logger *log.Logger, firstURL string) *Paginator[T] {
	return &Paginator[T]{
		gw:     gw,
		logger: logger,
		next:   firstURL,
		seen:   map[string]struct{}{},
		total:  -1,
		first:  true,
	}
}

// Total reports the upstream-declared total from the first page. It is -1
// before the first page has been fetched, and stays -1 when the first page
// did not declare one.
func (p *Paginator[T]) Total() int {
	return p.total
}

// Done reports whether the sequence is exhausted.
func (p *Paginator[T]) Done() bool {
	return p.done || p.next == ""
}

// Next fetches and returns the next page of items, or (nil, nil) once the
// sequence is exhausted.
func (p *Paginator[T]) Next(ctx context.Context) ([]T, error) {
	if p.done || p.next == "" {
		return nil, nil
	}

	url := p.next
	p.seen[url] = struct{}{}

	resp, err := p.gw.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	// A page without a total field keeps the -1 sentinel, leaving the
	// sequence unbounded.
	page := Page[T]{Total: -1}
	if err := resp.Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}

	if p.first {
		p.first = false
		p.total = page.Total
	}

	if page.Items == nil {
		p.logger.Warn("page without items", "url", url)
	}

	items := page.Items
	// Never yield beyond the total the first page advertised.
	if p.total >= 0 && p.yielded+len(items) > p.total {
		items = items[:p.total-p.yielded]
	}
	p.yielded += len(items)

	switch {
	case page.Next == nil || *page.Next == "":
		p.done = true
	case p.total >= 0 && p.yielded >= p.total:
		p.done = true
	default:
		if _, cycle := p.seen[*page.Next]; cycle {
			p.logger.Warn("pagination cycle detected", "url", *page.Next)
			p.done = true
		} else {
			p.next = *page.Next
		}
	}

	return items, nil
}

// Each walks the remaining pages, invoking fn per item in upstream order.
// Stops at the first error.
func (p *Paginator[T]) Each(ctx context.Context, fn func(item T) error) error {
	for !p.Done() {
		items, err := p.Next(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
	}
	return nil
}
