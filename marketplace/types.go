package marketplace

import "time"

// PluginInfo is the stable, normalized shape every marketplace response is
// projected into, regardless of the registry's own wire format.
type PluginInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	DisplayName string            `json:"displayName"`
	Description string            `json:"description"`
	Author      string            `json:"author"`
	Category    string            `json:"category"`
	Tags        []string          `json:"tags"`
	Rating      float64           `json:"rating"`
	Downloads   int64             `json:"downloads"`
	Verified    bool              `json:"verified"`
	Certified   bool              `json:"certified"`
	DownloadURL string            `json:"downloadUrl"`
	Checksums   map[string]string `json:"checksums"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// SearchParams are the query-side filters for Search.
type SearchParams struct {
	Query     string
	Category  string
	Tags      []string
	Author    string
	MinRating float64
	Verified  bool
	Limit     int
	Offset    int
	SortBy    string // relevance|downloads|rating|updated
}

// Facets summarizes the distribution of the (pre-pagination) result set.
type Facets struct {
	Categories map[string]int `json:"categories"`
	Tags       map[string]int `json:"tags"`
}

// SearchResult is Search's return envelope.
type SearchResult struct {
	Results []PluginInfo `json:"results"`
	Total   int          `json:"total"`
	HasMore bool         `json:"hasMore"`
	Facets  Facets       `json:"facets"`
}

// InstallOptions configures Install.
type InstallOptions struct {
	RequireCertified bool
	InstallDir       string
	InstallTimeout   time.Duration
}

// InstallResult is Install's return envelope.
type InstallResult struct {
	PluginID    string
	Version     string
	InstallPath string
}

// PublishResult is Publish's return envelope.
type PublishResult struct {
	PluginID string `json:"pluginId"`
	Version  string `json:"version"`
	URL      string `json:"url"`
}

// Review is one user review of a plugin.
type Review struct {
	ID        string    `json:"id"`
	PluginID  string    `json:"pluginId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Helpful   int       `json:"helpful"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewsParams configures Reviews.
type ReviewsParams struct {
	Limit  int
	Offset int
	SortBy string // helpful|recent|rating
}

// ReviewsResult is Reviews' return envelope.
type ReviewsResult struct {
	Reviews []Review `json:"reviews"`
	Total   int      `json:"total"`
	HasMore bool     `json:"hasMore"`
}

// TrendingParams configures Trending.
type TrendingParams struct {
	Period   string // day|week|month
	Category string
	Limit    int
}
