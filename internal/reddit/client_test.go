package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextraction/insight-engine/internal/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL), WithSleep(func() {}))
}

func TestSearchSubreddits_DeduplicatesAcrossKeywords(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/subreddits/search.json", r.URL.Path)
		keyword := r.URL.Query().Get("q")

		switch keyword {
		case "hydration":
			fmt.Fprint(w, `{"data": {"children": [
				{"data": {"display_name": "Hydration", "title": "Hydration", "public_description": "Water talk", "subscribers": 1200, "over18": false}},
				{"data": {"display_name": "fitness", "title": "Fitness", "public_description": "Fitness talk", "subscribers": 90000, "over18": false}}
			]}}`)
		case "water bottle":
			fmt.Fprint(w, `{"data": {"children": [
				{"data": {"display_name": "Hydration", "title": "Hydration", "public_description": "Water talk", "subscribers": 1200, "over18": false}},
				{"data": {"display_name": "BuyItForLife", "title": "BIFL", "public_description": "Durable goods", "subscribers": 500000, "over18": false}}
			]}}`)
		default:
			t.Fatalf("unexpected keyword %q", keyword)
		}
	}))

	subs, err := client.SearchSubreddits(context.Background(), []string{"hydration", "water bottle"})
	require.NoError(t, err)

	names := make([]string, 0, len(subs))
	for _, sub := range subs {
		names = append(names, sub.Name)
	}
	assert.Equal(t, []string{"Hydration", "fitness", "BuyItForLife"}, names)
}

func TestSearchSubreddits_AbsorbsKeywordFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "broken" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": {"children": [
			{"data": {"display_name": "gadgets", "title": "Gadgets", "public_description": "", "subscribers": 10, "over18": false}}
		]}}`)
	}))

	subs, err := client.SearchSubreddits(context.Background(), []string{"broken", "gadgets"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "gadgets", subs[0].Name)
}

func TestScrapeSubreddit_CollectsPostsAndComments(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/r/Hydration/top.json":
			fmt.Fprint(w, `{"data": {"children": [
				{"data": {"id": "abc1", "title": "Best smart bottle?", "selftext": "Looking for recommendations.", "score": 42}},
				{"data": {"id": "abc2", "title": "Tracking water intake", "selftext": "", "selftext_html": "&lt;div&gt;&lt;p&gt;I built a spreadsheet.&lt;/p&gt;&lt;/div&gt;", "score": 17}}
			]}}`)
		case "/r/Hydration/comments/abc1.json":
			fmt.Fprint(w, `[
				{"data": {"children": [{"data": {"title": "Best smart bottle?"}}]}},
				{"data": {"children": [
					{"data": {"body": "I use HydraTrack."}},
					{"data": {"body": "Honestly a marked cup works fine."}}
				]}}
			]`)
		case "/r/Hydration/comments/abc2.json":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	sub := types.Subreddit{Name: "Hydration"}
	collection, err := client.ScrapeSubreddit(context.Background(), sub, 4)
	require.NoError(t, err)

	assert.Equal(t, "Hydration", collection.SubredditName)
	require.Len(t, collection.Posts, 2)

	first := collection.Posts[0]
	assert.Equal(t, "Best smart bottle?", first.Title)
	assert.Equal(t, "Looking for recommendations.", first.SelfText)
	assert.Equal(t, 42, first.Score)
	assert.Equal(t, []string{"I use HydraTrack.", "Honestly a marked cup works fine."}, first.TopComments)

	// Second post: selftext recovered from HTML, failed comment fetch absorbed
	second := collection.Posts[1]
	assert.Equal(t, "I built a spreadsheet.", second.SelfText)
	assert.Empty(t, second.TopComments)
}

func TestScrapeSubreddit_FetchFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	collection, err := client.ScrapeSubreddit(context.Background(), types.Subreddit{Name: "private"}, 4)
	require.Error(t, err)
	assert.Equal(t, "private", collection.SubredditName)
	assert.Empty(t, collection.Posts)
}

func TestExtractSelfText(t *testing.T) {
	escaped := "&lt;div class=\"md\"&gt;&lt;p&gt;First paragraph.&lt;/p&gt;&lt;ul&gt;&lt;li&gt;A bullet&lt;/li&gt;&lt;/ul&gt;&lt;/div&gt;"
	text := extractSelfText(escaped)
	assert.Equal(t, "First paragraph.\nA bullet", text)
}

func TestFormatSubredditLine(t *testing.T) {
	sub := types.Subreddit{Name: "Hydration", Description: "Water talk", Subscribers: 1200, NSFW: false}
	line := FormatSubredditLine(3, sub)
	assert.Equal(t, "3. Hydration - Description: Water talk - Subscribers: 1200 - NSFW: false", line)

	empty := types.Subreddit{Name: "quiet", Subscribers: 5}
	assert.Contains(t, FormatSubredditLine(1, empty), "No description")
}
