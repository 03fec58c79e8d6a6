// Package reddit provides subreddit search and post scraping against the
// public Reddit JSON API.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nextraction/insight-engine/internal/types"
)

// DefaultBaseURL is the public Reddit API endpoint.
const DefaultBaseURL = "https://www.reddit.com"

// DefaultUserAgent identifies the scraper to Reddit.
const DefaultUserAgent = "insight-engine/1.0 (market research)"

// SubredditsPerKeyword is how many subreddits a single keyword search returns.
const SubredditsPerKeyword = 10

// TopCommentsPerPost caps the comments captured for each scraped post.
const TopCommentsPerPost = 5

// Client talks to the Reddit JSON API. The zero value is not usable;
// construct with NewClient.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client

	// sleep is called between keyword searches to respect rate limits.
	// Injectable for tests.
	sleep func()
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used in tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithSleep overrides the inter-request delay. Used in tests.
func WithSleep(sleep func()) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a Reddit client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sleep: func() {
			delays := []time.Duration{4 * time.Second, 5 * time.Second}
			time.Sleep(delays[rand.Intn(len(delays))])
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listing is the generic Reddit API envelope.
type listing struct {
	Data struct {
		Children []struct {
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type subredditData struct {
	DisplayName       string `json:"display_name"`
	Title             string `json:"title"`
	PublicDescription string `json:"public_description"`
	Subscribers       int    `json:"subscribers"`
	Over18            bool   `json:"over18"`
}

type postData struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SelfText     string `json:"selftext"`
	SelfTextHTML string `json:"selftext_html"`
	Score        int    `json:"score"`
}

type commentData struct {
	Body string `json:"body"`
}

// SearchSubreddits searches Reddit for each keyword and returns the deduplicated
// union of results, up to SubredditsPerKeyword per keyword. A failed search for
// one keyword is logged and skipped; it never fails the whole search.
func (c *Client) SearchSubreddits(ctx context.Context, keywords []string) ([]types.Subreddit, error) {
	var results []types.Subreddit
	seen := make(map[string]bool)

	for i, keyword := range keywords {
		subs, err := c.searchOne(ctx, keyword)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			log.Printf("[reddit] search for keyword %q failed: %v", keyword, err)
			continue
		}

		count := 0
		for _, sub := range subs {
			if seen[sub.Name] {
				continue
			}
			seen[sub.Name] = true
			results = append(results, sub)
			count++
			if count >= SubredditsPerKeyword {
				break
			}
		}

		if i < len(keywords)-1 {
			c.sleep()
		}
	}

	return results, nil
}

func (c *Client) searchOne(ctx context.Context, keyword string) ([]types.Subreddit, error) {
	endpoint := fmt.Sprintf("%s/subreddits/search.json?q=%s&limit=%d",
		c.baseURL, url.QueryEscape(keyword), SubredditsPerKeyword*2)

	var list listing
	if err := c.getJSON(ctx, endpoint, &list); err != nil {
		return nil, err
	}

	subs := make([]types.Subreddit, 0, len(list.Data.Children))
	for _, child := range list.Data.Children {
		var data subredditData
		if err := json.Unmarshal(child.Data, &data); err != nil {
			continue
		}
		if data.DisplayName == "" {
			continue
		}
		subs = append(subs, types.Subreddit{
			Name:        data.DisplayName,
			Title:       data.Title,
			Description: data.PublicDescription,
			Subscribers: data.Subscribers,
			NSFW:        data.Over18,
		})
	}
	return subs, nil
}

// ScrapeSubreddit fetches the top numPosts posts of a subreddit with up to
// TopCommentsPerPost comments each. Posts whose comment fetch fails keep an
// empty comment list rather than failing the scrape.
func (c *Client) ScrapeSubreddit(ctx context.Context, sub types.Subreddit, numPosts int) (types.PostCollection, error) {
	collection := types.PostCollection{SubredditName: sub.Name, Posts: []types.Post{}}

	endpoint := fmt.Sprintf("%s/r/%s/top.json?limit=%d&t=all",
		c.baseURL, url.PathEscape(sub.Name), numPosts)

	var list listing
	if err := c.getJSON(ctx, endpoint, &list); err != nil {
		return collection, fmt.Errorf("failed to fetch top posts for r/%s: %w", sub.Name, err)
	}

	for _, child := range list.Data.Children {
		var data postData
		if err := json.Unmarshal(child.Data, &data); err != nil {
			continue
		}

		selfText := data.SelfText
		if selfText == "" && data.SelfTextHTML != "" {
			selfText = extractSelfText(data.SelfTextHTML)
		}

		comments, err := c.topComments(ctx, sub.Name, data.ID)
		if err != nil {
			log.Printf("[reddit] comments for r/%s post %s failed: %v", sub.Name, data.ID, err)
			comments = []string{}
		}

		collection.Posts = append(collection.Posts, types.Post{
			Subreddit:   sub.Name,
			Title:       data.Title,
			SelfText:    selfText,
			Score:       data.Score,
			TopComments: comments,
		})
	}

	return collection, nil
}

func (c *Client) topComments(ctx context.Context, subName, postID string) ([]string, error) {
	if postID == "" {
		return []string{}, nil
	}

	endpoint := fmt.Sprintf("%s/r/%s/comments/%s.json?limit=%d&sort=confidence&depth=1",
		c.baseURL, url.PathEscape(subName), url.PathEscape(postID), TopCommentsPerPost)

	// The comments endpoint returns a two-element array: the post listing
	// followed by the comment listing.
	var listings []listing
	if err := c.getJSON(ctx, endpoint, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return []string{}, nil
	}

	comments := []string{}
	for _, child := range listings[1].Data.Children {
		if len(comments) >= TopCommentsPerPost {
			break
		}
		var data commentData
		if err := json.Unmarshal(child.Data, &data); err != nil {
			continue
		}
		if data.Body == "" {
			continue
		}
		comments = append(comments, data.Body)
	}
	return comments, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// extractSelfText converts a post's HTML body to plain text. Reddit returns
// the field HTML-escaped, so it is unescaped before parsing.
func extractSelfText(selfTextHTML string) string {
	unescaped := html.UnescapeString(selfTextHTML)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(unescaped))
	if err != nil {
		return ""
	}

	var parts []string
	doc.Find("p, li").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(parts, "\n")
}

// FormatSubredditLine renders one subreddit as a numbered line for relevance
// classification prompts.
func FormatSubredditLine(index int, sub types.Subreddit) string {
	description := sub.Description
	if description == "" {
		description = "No description"
	}
	return strconv.Itoa(index) + ". " + sub.Name +
		" - Description: " + description +
		" - Subscribers: " + strconv.Itoa(sub.Subscribers) +
		" - NSFW: " + strconv.FormatBool(sub.NSFW)
}
