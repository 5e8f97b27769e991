package client

// Business is one directory entry returned by the search API.
type Business struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Rating      float64     `json:"rating"`
	ReviewCount int         `json:"review_count"`
	Coordinates Coordinates `json:"coordinates"`
	Location    Location    `json:"location"`
}

// Coordinates is the geographic position of a business.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location is the postal address of a business.
// Address2 and Address3 are frequently null in API responses.
type Location struct {
	Address1 string  `json:"address1"`
	Address2 *string `json:"address2"`
	Address3 *string `json:"address3"`
	City     string  `json:"city"`
	State    string  `json:"state"`
	Country  string  `json:"country"`
}

// SearchResult is one page of search results.
type SearchResult struct {
	// Total is the number of businesses the API claims match the query,
	// across all pages.
	Total int `json:"total"`

	// Businesses holds at most Limit entries starting at the requested offset.
	Businesses []Business `json:"business"`
}
