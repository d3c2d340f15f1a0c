package marketplace

import (
	"context"
	"net/url"

	"github.com/ragforge/ragforge/ragerr"
)

// Search queries /plugins/search and normalizes results into PluginInfo.
func (c *Client) Search(ctx context.Context, params SearchParams) (SearchResult, error) {
	q := url.Values{}
	if params.Query != "" {
		q.Set("q", params.Query)
	}
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	for _, tag := range params.Tags {
		q.Add("tags", tag)
	}
	if params.Author != "" {
		q.Set("author", params.Author)
	}
	if params.MinRating > 0 {
		q.Set("minRating", floatParam(params.MinRating))
	}
	if params.Verified {
		q.Set("verified", "true")
	}
	if params.Limit > 0 {
		q.Set("limit", intParam(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", intParam(params.Offset))
	}
	if params.SortBy != "" {
		q.Set("sortBy", params.SortBy)
	}

	resp, err := c.do(ctx, "GET", "/plugins/search", q, nil)
	if err != nil {
		return SearchResult{}, err
	}

	var result SearchResult
	if err := unmarshalJSON(resp.body, &result); err != nil {
		return SearchResult{}, ragerr.Wrap(ragerr.Transient, "decode search response", err)
	}
	for i := range result.Results {
		c.sanitize(&result.Results[i])
	}
	return result, nil
}

// Info fetches a single plugin's PluginInfo, serving from the 5-minute
// cache when available.
func (c *Client) Info(ctx context.Context, id string) (PluginInfo, error) {
	if cached, ok := c.cache.Get(ctx, id); ok {
		return cached, nil
	}

	resp, err := c.do(ctx, "GET", "/plugins/"+id, nil, nil)
	if err != nil {
		return PluginInfo{}, err
	}

	var info PluginInfo
	if err := unmarshalJSON(resp.body, &info); err != nil {
		return PluginInfo{}, ragerr.Wrap(ragerr.Transient, "decode plugin info response", err)
	}
	c.sanitize(&info)
	c.cache.Set(ctx, id, info)
	return info, nil
}

// Trending fetches the top plugins for params.Period.
func (c *Client) Trending(ctx context.Context, params TrendingParams) ([]PluginInfo, error) {
	q := url.Values{}
	if params.Period != "" {
		q.Set("period", params.Period)
	}
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	if params.Limit > 0 {
		q.Set("limit", intParam(params.Limit))
	}

	resp, err := c.do(ctx, "GET", "/plugins/trending", q, nil)
	if err != nil {
		return nil, err
	}

	var results []PluginInfo
	if err := unmarshalJSON(resp.body, &results); err != nil {
		return nil, ragerr.Wrap(ragerr.Transient, "decode trending response", err)
	}
	for i := range results {
		c.sanitize(&results[i])
	}
	return results, nil
}

// Reviews fetches a paginated page of reviews for pluginID.
func (c *Client) Reviews(ctx context.Context, pluginID string, params ReviewsParams) (ReviewsResult, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", intParam(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", intParam(params.Offset))
	}
	if params.SortBy != "" {
		q.Set("sortBy", params.SortBy)
	}

	resp, err := c.do(ctx, "GET", "/plugins/"+pluginID+"/reviews", q, nil)
	if err != nil {
		return ReviewsResult{}, err
	}

	var result ReviewsResult
	if err := unmarshalJSON(resp.body, &result); err != nil {
		return ReviewsResult{}, ragerr.Wrap(ragerr.Transient, "decode reviews response", err)
	}
	return result, nil
}

// Rate submits a 1..5 rating for pluginID and records a review-analytics
// event. rating outside [1,5] fails with RatingOutOfRange before any
// network call is made.
func (c *Client) Rate(ctx context.Context, pluginID string, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ragerr.Newf(ragerr.RatingOutOfRange, "rating %d is outside the valid range 1..5", rating)
	}

	_, err := c.do(ctx, "POST", "/plugins/"+pluginID+"/ratings", nil, map[string]any{
		"rating":  rating,
		"comment": comment,
	})
	if err != nil {
		return err
	}

	c.analytics.record(AnalyticsEvent{Type: "rating", PluginID: pluginID, Metadata: map[string]any{"rating": rating}})
	return nil
}
