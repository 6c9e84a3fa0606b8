// Package pagination turns a single-page fetch into complete or lazy listings
// over cursor-paginated endpoints.
//
// The API returns at most 1000 items per page and a nextCursor while more data
// exists. An Iterator threads that cursor from page to page.
//
// Example usage:
//
//	it := pagination.NewIterator(fetchInstancesPage, logger)
//	page, err := it.FetchPage(ctx, "", 100)           // one page
//	all, err := it.ListAll(ctx)                      // drain everything
//	first5k, err := it.ListLimit(ctx, 5000)          // bounded drain
//	for item, err := range it.Items(ctx, 5000) { ... } // lazy, bounded
//	for item, err := range it.AllItems(ctx) { ... }    // lazy, unbounded
//
// Every limit must be positive; the All variants are the unbounded forms.
// A bounded drain never asks for more items than the limit leaves room for and
// never issues a request whose results would be discarded.
package pagination
