// Package types provides type definitions for structured data used throughout the insight-engine system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Subreddit describes a candidate community discovered during keyword search.
type Subreddit struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Subscribers int    `json:"subscribers"`
	NSFW        bool   `json:"nsfw"`
}

// Post is a single scraped discussion post with its highest-ranked comments.
type Post struct {
	Subreddit   string   `json:"subreddit"`
	Title       string   `json:"title"`
	SelfText    string   `json:"selftext"`
	Score       int      `json:"score"`
	TopComments []string `json:"top_comments"`
}

// PostCollection groups the posts scraped from one subreddit.
type PostCollection struct {
	SubredditName string `json:"subreddit_name"`
	Posts         []Post `json:"posts"`
}

// TotalPosts returns the number of posts across all collections.
func TotalPosts(collections []PostCollection) int {
	count := 0
	for _, c := range collections {
		count += len(c.Posts)
	}
	return count
}
