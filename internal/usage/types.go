package usage

// usageData is the root structure stored in usage.json.
type usageData struct {
	Version   string                   `json:"version"`
	ByAccount map[string]AccountTotals `json:"by_account"`
	Total     Totals                   `json:"total"`
}

// AccountTotals accumulates fetch results per account.
type AccountTotals struct {
	Fetches      int64 `json:"fetches"`
	LastRequests int   `json:"last_requests"`
	LastLimit    int   `json:"last_limit"`
	LastFetched  int64 `json:"last_fetched"`
}

// Totals holds the cross-account counters.
type Totals struct {
	Fetches       int64 `json:"fetches"`
	Invalidations int64 `json:"invalidations"`
}

// usageResponse is the service's usage payload.
type usageResponse struct {
	Requests int `json:"requests"`
	Limit    int `json:"limit"`
}
