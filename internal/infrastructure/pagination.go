package infrastructure

import (
	"context"

	"tracker-mcp-server/internal/domain"
)

// MaxPages bounds how many backend pages a single operation may fetch.
const MaxPages = 10

// pageFetcher fetches the page at cursor and returns its items together with
// the cursor of the following page. An empty next cursor means the backend
// reported the last page; the first call receives an empty cursor.
type pageFetcher[T any] func(ctx context.Context, cursor string) (items []T, next string, err error)

// drainPages fetches every page of a complete result set. A result that
// needs MaxPages pages or more fails with an incomplete result error, and
// any error discards the pages already collected.
func drainPages[T any](ctx context.Context, provider string, fetch pageFetcher[T]) ([]T, error) {
	all := []T{}
	cursor := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewUnavailableError(provider, "", err)
		}

		items, next, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)

		if page >= MaxPages {
			return nil, domain.NewIncompleteResultError(provider, MaxPages)
		}
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// collectPages fetches pages until want items are collected, the backend runs
// out of pages or MaxPages is reached. It is used for bounded searches where
// a truncated result is the expected outcome.
func collectPages[T any](ctx context.Context, provider string, want int, fetch pageFetcher[T]) ([]T, error) {
	all := []T{}
	cursor := ""
	for page := 1; page <= MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewUnavailableError(provider, "", err)
		}

		items, next, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)

		if len(all) >= want {
			return all[:want], nil
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return all, nil
}
