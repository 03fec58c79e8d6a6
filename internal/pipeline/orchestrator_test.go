package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextraction/insight-engine/internal/llm"
	"github.com/nextraction/insight-engine/internal/types"
)

// --- fakes -----------------------------------------------------------------

type fakeResearch struct {
	report string
	err    error
	calls  int
}

func (f *fakeResearch) Run(ctx context.Context, query string, breadth, depth int) (string, error) {
	f.calls++
	return f.report, f.err
}

// scriptedLLM answers each prompt based on which stage it belongs to.
type scriptedLLM struct {
	keywords        string
	subredditFilter string
	postFilter      string
	jtbd            string
	pains           string
	gains           string
	recap           string
	final           string

	prompts []string
	calls   int
}

func (s *scriptedLLM) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)

	switch {
	case strings.Contains(prompt, "comma-separated list of broad keywords"):
		return s.keywords, nil
	case strings.Contains(prompt, "filtering Reddit subreddits"):
		return s.subredditFilter, nil
	case strings.Contains(prompt, "filtering Reddit posts"):
		return s.postFilter, nil
	case strings.Contains(prompt, "‘Jobs to Be Done’ that emerge") || strings.Contains(prompt, "'Jobs to Be Done' that emerge"):
		return s.jtbd, nil
	case strings.Contains(prompt, "'Pains' that emerge"):
		return s.pains, nil
	case strings.Contains(prompt, "'Gains' that emerge"):
		return s.gains, nil
	case strings.Contains(prompt, "please rank them"):
		return s.recap, nil
	case strings.Contains(prompt, "Synthesize these into one cohesive report"):
		return s.final, nil
	}
	return "", fmt.Errorf("unexpected prompt: %.80s", prompt)
}

func (s *scriptedLLM) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier, temperature float32) (string, error) {
	return s.GenerateContent(ctx, prompt, tier)
}

func (s *scriptedLLM) GetModel(tier llm.ModelTier) string { return "fake-model" }
func (s *scriptedLLM) Close() error                       { return nil }

// promptFor returns the first recorded prompt containing marker.
func (s *scriptedLLM) promptFor(marker string) string {
	for _, p := range s.prompts {
		if strings.Contains(p, marker) {
			return p
		}
	}
	return ""
}

type fakeDiscussions struct {
	subs        []types.Subreddit
	collections map[string]types.PostCollection
	scrapeErrs  map[string]error

	searchCalls int
	scraped     []string
}

func (f *fakeDiscussions) SearchSubreddits(ctx context.Context, keywords []string) ([]types.Subreddit, error) {
	f.searchCalls++
	return f.subs, nil
}

func (f *fakeDiscussions) ScrapeSubreddit(ctx context.Context, sub types.Subreddit, numPosts int) (types.PostCollection, error) {
	f.scraped = append(f.scraped, sub.Name)
	if err := f.scrapeErrs[sub.Name]; err != nil {
		return types.PostCollection{SubredditName: sub.Name}, err
	}
	return f.collections[sub.Name], nil
}

type fakePersonas struct {
	personas []types.Persona
	err      error
	calls    int
}

func (f *fakePersonas) Generate(ctx context.Context, productDescription, finalAnalysis string, count int) ([]types.Persona, error) {
	f.calls++
	return f.personas, f.err
}

type fakeOverview struct {
	overview map[string]any
	err      error
	calls    int
}

func (f *fakeOverview) Generate(ctx context.Context, keyTrends, productDescription, finalAnalysis string) (map[string]any, error) {
	f.calls++
	return f.overview, f.err
}

type fakeStore struct {
	saveErr  error
	email    string
	emailErr error

	saved       *Results
	savedID     string
	failedCalls []string
}

func (f *fakeStore) SaveResults(ctx context.Context, projectID string, results *Results) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = results
	f.savedID = projectID
	return nil
}

func (f *fakeStore) GetUserEmail(ctx context.Context, projectID string) (string, error) {
	return f.email, f.emailErr
}

func (f *fakeStore) SetProjectFailed(ctx context.Context, projectID, message string) error {
	f.failedCalls = append(f.failedCalls, message)
	return nil
}

type fakeNotifier struct {
	sentTo   []string
	sendErr  error
	projects []string
}

func (f *fakeNotifier) SendProjectReady(ctx context.Context, email, projectName string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = append(f.sentTo, email)
	f.projects = append(f.projects, projectName)
	return nil
}

type recordingReporter struct {
	statuses []Status
	data     map[Status]any
	logs     []string
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{data: make(map[Status]any)}
}

func (r *recordingReporter) ReportStatus(taskID string, status Status, dataKey string, dataValue any) {
	r.statuses = append(r.statuses, status)
	if dataKey != "" {
		r.data[status] = dataValue
	}
}

func (r *recordingReporter) Log(taskID, message string) {
	r.logs = append(r.logs, message)
}

func (r *recordingReporter) logContaining(substr string) string {
	for _, l := range r.logs {
		if strings.Contains(l, substr) {
			return l
		}
	}
	return ""
}

// --- fixtures --------------------------------------------------------------

const testReport = `### 1. Overview
- **Product Concept:** Smart hydration tracking.
`

func healthyFixture() (*fakeResearch, *scriptedLLM, *fakeDiscussions, *fakePersonas, *fakeOverview, *fakeStore, *fakeNotifier, *recordingReporter) {
	research := &fakeResearch{report: testReport}
	model := &scriptedLLM{
		keywords:        "hydration, fitness tech, water bottle",
		subredditFilter: "Hydration, fitness",
		postFilter:      "1, 2",
		jtbd:            "JTBD findings",
		pains:           "Pains findings",
		gains:           "Gains findings",
		recap:           "Recap rankings",
		final:           "# Final Report\n\n# Introduction\nSynthesis.\n",
	}
	discussions := &fakeDiscussions{
		subs: []types.Subreddit{
			{Name: "Hydration", Subscribers: 1000},
			{Name: "fitness", Subscribers: 90000},
		},
		collections: map[string]types.PostCollection{
			"Hydration": {SubredditName: "Hydration", Posts: []types.Post{
				{Title: "Best smart bottle?", SelfText: "Recommendations?", Score: 42, TopComments: []string{"Use HydraTrack."}},
			}},
			"fitness": {SubredditName: "fitness", Posts: []types.Post{
				{Title: "Tracking water intake", Score: 17},
			}},
		},
	}
	personaGen := &fakePersonas{personas: []types.Persona{
		{Name: "Maya"}, {Name: "Luis"}, {Name: "Priya"}, {Name: "Tom"},
	}}
	overviewGen := &fakeOverview{overview: map[string]any{"Problem": "Dehydration"}}
	store := &fakeStore{email: "founder@example.com"}
	notifier := &fakeNotifier{}
	reporter := newRecordingReporter()
	return research, model, discussions, personaGen, overviewGen, store, notifier, reporter
}

func newTestOrchestrator(research ResearchClient, model llm.Client, discussions DiscussionClient,
	personaGen PersonaGenerator, overviewGen OverviewGenerator, store ResultStore,
	notifier Notifier, reporter Reporter) *Orchestrator {
	return NewOrchestrator(Deps{
		Research:    research,
		LLM:         model,
		Discussions: discussions,
		Personas:    personaGen,
		Overview:    overviewGen,
		Store:       store,
		Notifier:    notifier,
		Reporter:    reporter,
	},
		WithScrapeDelay(func() {}),
		WithBatchDelay(func() {}),
	)
}

func testRequest() Request {
	return Request{
		TaskID:             "task-1",
		ProjectID:          "project-1",
		Name:               "HydraTrack",
		ProductDescription: "A smart water bottle that tracks hydration",
	}
}

// --- tests -----------------------------------------------------------------

func TestRun_HappyPath_StatusOrder(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	results, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotNil(t, results)

	assert.Equal(t, []Status{
		StatusRunningKeyTrends,
		StatusGeneratingKeywords,
		StatusFindingSubreddits,
		StatusFilteringSubreddits,
		StatusScrapingSubreddits,
		StatusFilteringPosts,
		StatusAnalyzingJTBD,
		StatusAnalyzingPains,
		StatusAnalyzingGains,
		StatusAnalyzingRecap,
		StatusAnalyzingFinal,
		StatusFinalAnalysisReady,
		StatusGeneratingPersonas,
		StatusPersonasReady,
	}, reporter.statuses)
}

func TestRun_HappyPath_Results(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	results, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.NotNil(t, results.KeyTrends)
	assert.NotEmpty(t, results.KeyTrends.Overview)
	require.Len(t, results.Personas, 4)
	for _, persona := range results.Personas {
		assert.NotEmpty(t, persona.Name)
	}
	assert.Equal(t, "Dehydration", results.Overview["Problem"])

	// Bookkeeping ran
	require.NotNil(t, store.saved)
	assert.Equal(t, "project-1", store.savedID)
	assert.Equal(t, []string{"founder@example.com"}, notifier.sentTo)
	assert.Equal(t, []string{"HydraTrack"}, notifier.projects)
}

func TestRun_AnalysisPromptsEmbedUpstreamOutputs(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	_, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	// Each analysis prompt carries the research report and the surviving posts
	jtbdPrompt := model.promptFor("Jobs to Be Done")
	require.NotEmpty(t, jtbdPrompt)
	assert.Contains(t, jtbdPrompt, "Smart hydration tracking")
	assert.Contains(t, jtbdPrompt, "Best smart bottle?")

	// Recap embeds all three analyses verbatim
	recapPrompt := model.promptFor("please rank them")
	require.NotEmpty(t, recapPrompt)
	assert.Contains(t, recapPrompt, "JTBD findings")
	assert.Contains(t, recapPrompt, "Pains findings")
	assert.Contains(t, recapPrompt, "Gains findings")

	// Final synthesis embeds all four
	finalPrompt := model.promptFor("Synthesize these into one cohesive report")
	require.NotEmpty(t, finalPrompt)
	assert.Contains(t, finalPrompt, "JTBD findings")
	assert.Contains(t, finalPrompt, "Pains findings")
	assert.Contains(t, finalPrompt, "Gains findings")
	assert.Contains(t, finalPrompt, "Recap rankings")
}

func TestRun_TimingSummaryCoversEveryStage(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	start := time.Now()
	results, err := o.Run(context.Background(), testRequest())
	total := time.Since(start)
	require.NoError(t, err)

	allStages := []string{
		"Key Trends Analysis", "Keyword Generation", "Subreddit Discovery",
		"Subreddit Filtering", "Scraping", "Post Filtering",
		"JTBD Analysis", "Pains Analysis", "Gains Analysis",
		"Recap Analysis", "Final Analysis", "Persona Generation",
	}

	summary := reporter.logContaining("TIMING SUMMARY")
	require.NotEmpty(t, summary)
	for _, stage := range allStages {
		assert.Contains(t, summary, stage)
		assert.NotEmpty(t, reporter.logContaining(stage+" completed in"))
	}
	assert.Contains(t, summary, "%)")

	// One timing per stage, each non-negative, summing to no more than the run
	require.Len(t, results.Timings, len(allStages))
	var sum time.Duration
	for _, timing := range results.Timings {
		assert.GreaterOrEqual(t, timing.Duration, time.Duration(0))
		sum += timing.Duration
	}
	assert.LessOrEqual(t, sum, total)
}

func TestRun_FailedRunLogsAttemptedStageDurations(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	model.jtbd = ""
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	_, err := o.Run(context.Background(), testRequest())
	require.Error(t, err)

	// Every stage that ran left its duration in the log stream
	for _, stage := range []string{
		"Key Trends Analysis", "Keyword Generation", "Subreddit Discovery",
		"Subreddit Filtering", "Scraping", "Post Filtering", "JTBD Analysis",
	} {
		assert.NotEmpty(t, reporter.logContaining(stage+" completed in"))
	}
	assert.Empty(t, reporter.logContaining("Pains Analysis completed in"))
}

func TestRun_ResearchFailureIsHard(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	research.err = errors.New("research backend down")
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	results, err := o.Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, results)

	// Nothing downstream was invoked
	assert.Zero(t, model.calls)
	assert.Zero(t, discussions.searchCalls)
	assert.Zero(t, personaGen.calls)
	assert.Nil(t, store.saved)
	assert.Empty(t, notifier.sentTo)

	assert.Equal(t, StatusFailed, reporter.statuses[len(reporter.statuses)-1])
	assert.NotEmpty(t, store.failedCalls)
}

func TestRun_EmptyReportIsHard(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	research.report = ""
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	_, err := o.Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no report")
}

func TestRun_EmptyKeywordsIsHard(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	model.keywords = "   "
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	_, err := o.Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no keywords")
	assert.Zero(t, discussions.searchCalls)
}

func TestRun_SubredditFilterNoneIsAbsorbed(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	model.subredditFilter = "NONE"
	model.postFilter = "NONE"
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	results, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotNil(t, results)

	// Nothing was scraped, but the run still completed
	assert.Empty(t, discussions.scraped)
	assert.Equal(t, StatusPersonasReady, reporter.statuses[len(reporter.statuses)-1])
}

func TestRun_PartialScrapeFailureIsAbsorbed(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	discussions.scrapeErrs = map[string]error{"fitness": errors.New("HTTP status 403")}
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	results, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotNil(t, results)

	assert.Equal(t, []string{"Hydration", "fitness"}, discussions.scraped)
	assert.NotEmpty(t, reporter.logContaining("Error scraping subreddit fitness"))
	assert.Equal(t, StatusPersonasReady, reporter.statuses[len(reporter.statuses)-1])
}

func TestRun_MalformedPostFilterIsAbsorbed(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	model.postFilter = "the model rambled about irrelevant things"
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	results, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Equal(t, StatusPersonasReady, reporter.statuses[len(reporter.statuses)-1])
}

func TestRun_EmptyAnalysisIsHard(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	model.jtbd = ""
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	_, err := o.Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JTBD")
	assert.Zero(t, personaGen.calls)
	assert.Equal(t, StatusFailed, reporter.statuses[len(reporter.statuses)-1])
}

func TestRun_PersonaFailureIsHard(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	personaGen.err = errors.New("schema validation failed")
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	results, err := o.Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Nil(t, store.saved)
	assert.Equal(t, StatusFailed, reporter.statuses[len(reporter.statuses)-1])
}

func TestRun_UnparseableFinalAnalysisIsAbsorbed(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	model.final = "prose with no markdown structure at all"
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	results, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotNil(t, results)

	wrapped, ok := results.FinalAnalysis.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "prose with no markdown structure at all", wrapped["error"])
}

func TestRun_BookkeepingFailureDoesNotFailRun(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	store.saveErr = errors.New("connection refused")
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	results, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotNil(t, results)

	assert.Equal(t, StatusPersonasReady, reporter.statuses[len(reporter.statuses)-1])
	assert.NotEmpty(t, reporter.logContaining("Failed to save analysis results"))
	assert.Empty(t, notifier.sentTo)
}

func TestRun_MissingEmailIsAbsorbed(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	store.email = ""
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	_, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, reporter.logContaining("Could not find user email"))
	assert.Empty(t, notifier.sentTo)
}

func TestRun_PersonaDetailsReported(t *testing.T) {
	research, model, discussions, personaGen, overviewGen, store, notifier, reporter := healthyFixture()
	o := newTestOrchestrator(research, model, discussions, personaGen, overviewGen, store, notifier, reporter)

	_, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	details, ok := reporter.data[StatusPersonasReady].([]types.Persona)
	require.True(t, ok)
	assert.Len(t, details, 4)
	assert.NotEmpty(t, reporter.logContaining("Personas ready with details"))
}
