package client

// searchQuery is the GraphQL document sent for every search page.
// User input is only ever passed through the variables map.
const searchQuery = `query Search($term: String, $location: String, $offset: Int, $sortBy: String, $openNow: Boolean, $limit: Int) {
  search(term: $term, location: $location, offset: $offset, sort_by: $sortBy, open_now: $openNow, limit: $limit) {
    total
    business {
      id
      name
      rating
      review_count
      coordinates { latitude longitude }
      location { address1 address2 address3 city state country }
    }
  }
}`

// graphQLRequest is the JSON body posted to the GraphQL endpoint.
type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the response envelope of a search call.
type graphQLResponse struct {
	Data *struct {
		Search *SearchResult `json:"search"`
	} `json:"data"`
	Errors []graphQLErrorEntry `json:"errors"`
}

type graphQLErrorEntry struct {
	Message string `json:"message"`
}

// searchVariables binds one page request to the query variables.
// A zero offset is sent as null so the first page matches a plain search.
func searchVariables(term, location string, offset int, opts SearchOptions) map[string]any {
	vars := map[string]any{
		"term":     term,
		"location": location,
		"sortBy":   opts.SortBy,
		"openNow":  opts.OpenNow,
		"limit":    opts.Limit,
	}
	if offset > 0 {
		vars["offset"] = offset
	} else {
		vars["offset"] = nil
	}
	return vars
}
