// Package pipeline provides the high-level orchestration for a market
// research run: deep research, community discovery and scraping, staged
// analysis, and persona generation.
package pipeline

import (
	"context"
	"time"

	"github.com/nextraction/insight-engine/internal/markdown"
	"github.com/nextraction/insight-engine/internal/types"
)

// Status is the externally visible state of a run. Statuses advance strictly
// in pipeline order; failed is reachable from any of them.
type Status string

const (
	StatusPending             Status = "pending"
	StatusRunningKeyTrends    Status = "running_key_trends"
	StatusGeneratingKeywords  Status = "generating_keywords"
	StatusFindingSubreddits   Status = "finding_subreddits"
	StatusFilteringSubreddits Status = "filtering_subreddits"
	StatusScrapingSubreddits  Status = "scraping_subreddits"
	StatusFilteringPosts      Status = "filtering_posts"
	StatusAnalyzingJTBD       Status = "analyzing_jtbd"
	StatusAnalyzingPains      Status = "analyzing_pains"
	StatusAnalyzingGains      Status = "analyzing_gains"
	StatusAnalyzingRecap      Status = "analyzing_recap"
	StatusAnalyzingFinal      Status = "analyzing_final"
	StatusFinalAnalysisReady  Status = "final_analysis_ready"
	StatusGeneratingPersonas  Status = "generating_personas"
	StatusPersonasReady       Status = "personas_ready"
	StatusFailed              Status = "failed"
)

// Request carries the inputs of one analysis run. The HTTP layer validates
// these before a run starts; the pipeline receives already-typed values.
type Request struct {
	TaskID             string
	ProjectID          string
	Name               string
	ProductDescription string
	Industry           string
	StageLabel         string
	RequesterID        string
}

// FilteredPost is a scraped post that survived relevance filtering.
type FilteredPost struct {
	Subreddit   string   `json:"subreddit"`
	Title       string   `json:"title"`
	SelfText    string   `json:"selftext"`
	TopComments []string `json:"top_comments"`
}

// State accumulates stage outputs over the course of a run. Later stages
// read the fields earlier stages wrote; nothing is ever overwritten.
type State struct {
	Report             string
	ReportJSON         *markdown.TrendsReport
	Keywords           []string
	FoundSubreddits    []types.Subreddit
	FilteredSubreddits []types.Subreddit
	Scraped            []types.PostCollection
	FilteredPosts      []FilteredPost
	JTBD               string
	Pains              string
	Gains              string
	Recap              string
	FinalAnalysis      string
	FinalAnalysisJSON  any
	Personas           []types.Persona
	Overview           map[string]any
}

// Results is the bundle of artifacts a successful run persists.
type Results struct {
	KeyTrends     *markdown.TrendsReport `json:"key_trends"`
	FinalAnalysis any                    `json:"final_analysis"`
	Overview      map[string]any         `json:"overview"`
	Personas      []types.Persona        `json:"personas"`
	Timings       []StageTiming          `json:"timings,omitempty"`
}

// StageTiming records the wall-clock duration of one pipeline stage.
type StageTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// ResearchClient runs a deep research query.
type ResearchClient interface {
	Run(ctx context.Context, query string, breadth, depth int) (string, error)
}

// DiscussionClient finds and scrapes community discussions.
type DiscussionClient interface {
	SearchSubreddits(ctx context.Context, keywords []string) ([]types.Subreddit, error)
	ScrapeSubreddit(ctx context.Context, sub types.Subreddit, numPosts int) (types.PostCollection, error)
}

// PersonaGenerator produces persona records from a final analysis.
type PersonaGenerator interface {
	Generate(ctx context.Context, productDescription, finalAnalysis string, count int) ([]types.Persona, error)
}

// OverviewGenerator produces the project overview JSON.
type OverviewGenerator interface {
	Generate(ctx context.Context, keyTrends, productDescription, finalAnalysis string) (map[string]any, error)
}

// ResultStore persists run artifacts and answers bookkeeping lookups.
type ResultStore interface {
	SaveResults(ctx context.Context, projectID string, results *Results) error
	GetUserEmail(ctx context.Context, projectID string) (string, error)
	SetProjectFailed(ctx context.Context, projectID, message string) error
}

// Notifier sends the completion notification.
type Notifier interface {
	SendProjectReady(ctx context.Context, email, projectName string) error
}

// Reporter receives status transitions and log lines for a task. Deliveries
// must never block the pipeline.
type Reporter interface {
	ReportStatus(taskID string, status Status, dataKey string, dataValue any)
	Log(taskID, message string)
}

// Config holds the tunable parameters of a run.
type Config struct {
	ResearchBreadth int
	ResearchDepth   int
	PostsPerSub     int
	PostBatchSize   int
	PersonaCount    int
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		ResearchBreadth: 6,
		ResearchDepth:   4,
		PostsPerSub:     4,
		PostBatchSize:   40,
		PersonaCount:    4,
	}
}
