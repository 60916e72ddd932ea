package github

import "context"

// Page is one page of a remote paginated collection. An empty NextCursor
// means this is the last page. Cursors are opaque: REST endpoints use page
// numbers, GraphQL endpoints use endCursor values.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// PageFunc fetches the page at cursor. The empty cursor selects the first page.
type PageFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Iterator lazily walks a paginated collection one page at a time.
// It is not safe for concurrent use.
type Iterator[T any] struct {
	fetch  PageFunc[T]
	cursor string
	done   bool
}

func NewIterator[T any](fetch PageFunc[T]) *Iterator[T] {
	return &Iterator[T]{fetch: fetch}
}

// Next fetches the next page. ok is false once the collection is exhausted,
// in which case no request is made. Transport errors are returned unchanged.
func (it *Iterator[T]) Next(ctx context.Context) (items []T, ok bool, err error) {
	if it.done {
		return nil, false, nil
	}

	page, err := it.fetch(ctx, it.cursor)
	if err != nil {
		return nil, false, err
	}

	it.cursor = page.NextCursor
	if it.cursor == "" {
		it.done = true
	}
	return page.Items, true, nil
}

// Collect fetches every page and concatenates the items in response order.
func Collect[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	it := NewIterator(fetch)
	var all []T
	for {
		items, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return all, nil
		}
		all = append(all, items...)
	}
}

// Find scans pages in order and returns the first item matching predicate.
// Pages after the one holding the match are never requested. found is false
// when the collection is exhausted without a match.
func Find[T any](ctx context.Context, fetch PageFunc[T], predicate func(T) bool) (item T, found bool, err error) {
	it := NewIterator(fetch)
	for {
		items, ok, err := it.Next(ctx)
		if err != nil {
			return item, false, err
		}
		if !ok {
			return item, false, nil
		}
		for _, candidate := range items {
			if predicate(candidate) {
				return candidate, true, nil
			}
		}
	}
}
