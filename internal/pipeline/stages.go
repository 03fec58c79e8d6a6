package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nextraction/insight-engine/internal/types"
)

// NoneResponse is the sentinel the filter prompts instruct the model to
// return when nothing in a batch is relevant.
const NoneResponse = "NONE"

// ParseKeywords splits a comma-separated model response into clean, unique
// keywords. First occurrence wins, order is preserved.
func ParseKeywords(response string) []string {
	seen := make(map[string]bool)
	keywords := []string{}

	for _, raw := range strings.Split(response, ",") {
		keyword := strings.Trim(strings.TrimSpace(raw), ".")
		if keyword == "" || seen[keyword] {
			continue
		}
		seen[keyword] = true
		keywords = append(keywords, keyword)
	}
	return keywords
}

// MatchSubredditNames maps a comma-separated list of subreddit names back to
// the candidate objects. Names the model invented are dropped; a NONE or
// unparseable response yields an empty result.
func MatchSubredditNames(candidates []types.Subreddit, response string) []types.Subreddit {
	response = strings.TrimSpace(response)
	if response == "" || strings.EqualFold(response, NoneResponse) {
		return []types.Subreddit{}
	}

	wanted := make(map[string]bool)
	for _, name := range strings.Split(response, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			wanted[name] = true
		}
	}

	matched := []types.Subreddit{}
	for _, sub := range candidates {
		if wanted[sub.Name] {
			matched = append(matched, sub)
		}
	}
	return matched
}

// NumberedPost is a scraped post with the stable batch-wide ID used for
// relevance classification.
type NumberedPost struct {
	ID          int
	Subreddit   string
	Title       string
	SelfText    string
	Score       int
	TopComments []string
}

// NumberPosts flattens all scraped collections into a single list with IDs
// assigned in encounter order, starting at 1.
func NumberPosts(scraped []types.PostCollection) []NumberedPost {
	numbered := []NumberedPost{}
	id := 0
	for _, collection := range scraped {
		for _, post := range collection.Posts {
			id++
			numbered = append(numbered, NumberedPost{
				ID:          id,
				Subreddit:   collection.SubredditName,
				Title:       post.Title,
				SelfText:    post.SelfText,
				Score:       post.Score,
				TopComments: post.TopComments,
			})
		}
	}
	return numbered
}

// BatchPosts splits posts into chunks of at most batchSize.
func BatchPosts(posts []NumberedPost, batchSize int) [][]NumberedPost {
	if batchSize <= 0 {
		batchSize = 1
	}
	var batches [][]NumberedPost
	for start := 0; start < len(posts); start += batchSize {
		end := start + batchSize
		if end > len(posts) {
			end = len(posts)
		}
		batches = append(batches, posts[start:end])
	}
	return batches
}

// RenderPostBatch renders one batch as the enumerated text block the filter
// prompt expects, posts separated by "---".
func RenderPostBatch(batch []NumberedPost) string {
	rendered := make([]string, 0, len(batch))
	for _, post := range batch {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. [%s] Title: %s", post.ID, post.Subreddit, post.Title)
		if strings.TrimSpace(post.SelfText) != "" {
			fmt.Fprintf(&b, "\nText: %s", post.SelfText)
		}
		if len(post.TopComments) > 0 {
			b.WriteString("\nTop Comments:")
			for _, comment := range post.TopComments {
				fmt.Fprintf(&b, "\n- %s", comment)
			}
		} else {
			b.WriteString("\nComments: No comments")
		}
		fmt.Fprintf(&b, "\nScore: %d\n", post.Score)
		rendered = append(rendered, b.String())
	}
	return strings.Join(rendered, "\n---\n")
}

// MatchPostIDs maps a comma-separated ID response back to the posts of one
// batch. Non-numeric tokens are skipped; NONE or garbage yields no matches.
func MatchPostIDs(batch []NumberedPost, response string) []FilteredPost {
	response = strings.TrimSpace(response)
	if response == "" || strings.EqualFold(response, NoneResponse) {
		return nil
	}

	wanted := make(map[int]bool)
	for _, token := range strings.Split(response, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(token))
		if err != nil {
			continue
		}
		wanted[id] = true
	}

	var matched []FilteredPost
	for _, post := range batch {
		if wanted[post.ID] {
			matched = append(matched, FilteredPost{
				Subreddit:   post.Subreddit,
				Title:       post.Title,
				SelfText:    post.SelfText,
				TopComments: post.TopComments,
			})
		}
	}
	return matched
}
