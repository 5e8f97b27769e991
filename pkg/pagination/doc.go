// Package pagination assembles a complete search result set from
// offset-paginated Yelp search pages.
//
// Pages are fetched one at a time, in order, starting at offset 0:
//
//	p := pagination.NewPaginator(yelpClient, pagination.DefaultConfig())
//	result, err := p.Collect(ctx, "restaurant", "flushing")
//	if err != nil {
//		// the first page failed; nothing was collected
//	}
//	if !result.Complete {
//		// result.Businesses holds what was fetched before result.Err
//	}
//
// Collection stops when the accumulated count reaches the declared total,
// when a page comes back empty, when the API's result window is exhausted,
// or when a page fetch fails. A failure after the first page does not
// escape as an error: it is logged and reported through Result.Err,
// Result.Complete and Result.StopReason.
package pagination
