package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/nextraction/insight-engine/internal/llm"
	"github.com/nextraction/insight-engine/internal/markdown"
	"github.com/nextraction/insight-engine/internal/prompts"
	"github.com/nextraction/insight-engine/internal/reddit"
	"github.com/nextraction/insight-engine/internal/types"
)

// Deps bundles the collaborators an Orchestrator needs.
type Deps struct {
	Research    ResearchClient
	LLM         llm.Client
	Discussions DiscussionClient
	Personas    PersonaGenerator
	Overview    OverviewGenerator
	Store       ResultStore
	Notifier    Notifier
	Reporter    Reporter
}

// Orchestrator runs the analysis pipeline end to end for one request.
type Orchestrator struct {
	deps   Deps
	config Config

	// scrapeDelay runs between subreddit scrapes, batchDelay between
	// post-filter batches. Injectable for tests.
	scrapeDelay func()
	batchDelay  func()
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig overrides the default run parameters.
func WithConfig(config Config) Option {
	return func(o *Orchestrator) { o.config = config }
}

// WithScrapeDelay overrides the delay between subreddit scrapes.
func WithScrapeDelay(delay func()) Option {
	return func(o *Orchestrator) { o.scrapeDelay = delay }
}

// WithBatchDelay overrides the delay between post-filter batches.
func WithBatchDelay(delay func()) Option {
	return func(o *Orchestrator) { o.batchDelay = delay }
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:   deps,
		config: DefaultConfig(),
		scrapeDelay: func() {
			delays := []time.Duration{2 * time.Second, 4 * time.Second}
			time.Sleep(delays[rand.Intn(len(delays))])
		},
		batchDelay: func() { time.Sleep(time.Second) },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the full pipeline for one request. Hard failures stop the run
// and mark it failed; scrape and filter degradations are absorbed so a run
// can complete on partial data. Bookkeeping failures after the analytical
// work never retract a successful run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (results *Results, err error) {
	state := &State{}
	var timings []StageTiming
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in analysis run: %v", r)
			o.fail(ctx, req, err.Error())
			results = nil
		}
	}()

	runStage := func(name string, stage func() error) error {
		stageStart := time.Now()
		stageErr := stage()
		elapsed := time.Since(stageStart)
		timings = append(timings, StageTiming{Name: name, Duration: elapsed})
		o.log(req, fmt.Sprintf("%s completed in %.2fs", name, elapsed.Seconds()))
		return stageErr
	}

	// Key trends via deep research
	o.log(req, "Starting Key Trends Analysis...")
	o.status(req, StatusRunningKeyTrends)
	if err := runStage("Key Trends Analysis", func() error {
		return o.keyTrendsStage(ctx, req, state)
	}); err != nil {
		o.fail(ctx, req, err.Error())
		return nil, err
	}
	o.log(req, "Key Trends Analysis complete.")

	// Keywords
	o.log(req, "Starting keywords generation...")
	o.status(req, StatusGeneratingKeywords)
	if err := runStage("Keyword Generation", func() error {
		return o.keywordsStage(ctx, req, state)
	}); err != nil {
		o.fail(ctx, req, err.Error())
		return nil, err
	}
	o.log(req, fmt.Sprintf("Generated keywords: %v", state.Keywords))

	// Subreddit discovery
	o.log(req, "Finding subreddits...")
	o.status(req, StatusFindingSubreddits)
	if err := runStage("Subreddit Discovery", func() error {
		found, searchErr := o.deps.Discussions.SearchSubreddits(ctx, state.Keywords)
		if searchErr != nil {
			return fmt.Errorf("subreddit search failed: %w", searchErr)
		}
		state.FoundSubreddits = found
		return nil
	}); err != nil {
		o.fail(ctx, req, err.Error())
		return nil, err
	}
	o.log(req, fmt.Sprintf("Found %d potential subreddits.", len(state.FoundSubreddits)))

	// Subreddit relevance filter
	o.log(req, "Filtering subreddits...")
	o.status(req, StatusFilteringSubreddits)
	_ = runStage("Subreddit Filtering", func() error {
		state.FilteredSubreddits = o.filterSubreddits(ctx, req, state)
		return nil
	})
	names := make([]string, 0, len(state.FilteredSubreddits))
	for _, sub := range state.FilteredSubreddits {
		names = append(names, sub.Name)
	}
	o.log(req, fmt.Sprintf("Filtered subreddits: %v", names))

	// Scraping
	o.log(req, "Starting Scraping...")
	o.status(req, StatusScrapingSubreddits)
	_ = runStage("Scraping", func() error {
		o.scrapeStage(ctx, req, state)
		return nil
	})
	o.log(req, "Scraping done!")

	// Post relevance filter
	o.status(req, StatusFilteringPosts)
	_ = runStage("Post Filtering", func() error {
		state.FilteredPosts = o.filterPosts(ctx, req, state)
		return nil
	})
	o.log(req, "All Irrelevant posts have been removed.")

	// Staged analysis
	o.log(req, "Starting Prompt 1 (Jobs to Be Done)...")
	o.status(req, StatusAnalyzingJTBD)
	if err := runStage("JTBD Analysis", func() error {
		text, analysisErr := o.analyzeWithReport(ctx, state, "jtbd")
		if analysisErr != nil {
			return fmt.Errorf("JTBD analysis failed: %w", analysisErr)
		}
		state.JTBD = text
		return nil
	}); err != nil {
		o.fail(ctx, req, err.Error())
		return nil, err
	}
	o.log(req, "JTBD Analysis complete.")

	o.log(req, "Starting Prompt 2 (Pains)...")
	o.status(req, StatusAnalyzingPains)
	if err := runStage("Pains Analysis", func() error {
		text, analysisErr := o.analyzeWithReport(ctx, state, "pains")
		if analysisErr != nil {
			return fmt.Errorf("pains analysis failed: %w", analysisErr)
		}
		state.Pains = text
		return nil
	}); err != nil {
		o.fail(ctx, req, err.Error())
		return nil, err
	}
	o.log(req, "Pains Analysis complete.")

	o.log(req, "Starting Prompt 3 (Gains)...")
	o.status(req, StatusAnalyzingGains)
	if err := runStage("Gains Analysis", func() error {
		text, analysisErr := o.analyzeWithReport(ctx, state, "gains")
		if analysisErr != nil {
			return fmt.Errorf("gains analysis failed: %w", analysisErr)
		}
		state.Gains = text
		return nil
	}); err != nil {
		o.fail(ctx, req, err.Error())
		return nil, err
	}
	o.log(req, "Gains Analysis complete.")

	o.log(req, "Starting Prompt 4 (Recap)...")
	o.status(req, StatusAnalyzingRecap)
	if err := runStage("Recap Analysis", func() error {
		return o.recapStage(ctx, state)
	}); err != nil {
		o.fail(ctx, req, err.Error())
		return nil, err
	}
	o.log(req, "Recap Analysis complete.")

	o.log(req, "Starting Prompt 5 (Final Analysis)...")
	o.status(req, StatusAnalyzingFinal)
	if err := runStage("Final Analysis", func() error {
		return o.finalSynthesisStage(ctx, state)
	}); err != nil {
		o.fail(ctx, req, err.Error())
		return nil, err
	}
	o.deps.Reporter.ReportStatus(req.TaskID, StatusFinalAnalysisReady, "final_analysis", state.FinalAnalysisJSON)

	// Personas and overview
	o.log(req, "Generating personas...")
	o.status(req, StatusGeneratingPersonas)
	if err := runStage("Persona Generation", func() error {
		return o.personasStage(ctx, req, state)
	}); err != nil {
		o.fail(ctx, req, err.Error())
		return nil, err
	}
	o.deps.Reporter.ReportStatus(req.TaskID, StatusPersonasReady, "persona_details", state.Personas)

	personaNames := make([]string, 0, len(state.Personas))
	for _, p := range state.Personas {
		personaNames = append(personaNames, p.Name)
	}
	o.log(req, fmt.Sprintf("Personas ready with details: %v", personaNames))

	o.log(req, timingSummary(req.TaskID, time.Since(start), timings))

	results = &Results{
		KeyTrends:     state.ReportJSON,
		FinalAnalysis: state.FinalAnalysisJSON,
		Overview:      state.Overview,
		Personas:      state.Personas,
		Timings:       timings,
	}

	o.persistAndNotify(ctx, req, results)

	return results, nil
}

// keyTrendsStage runs the deep research query and parses its report.
func (o *Orchestrator) keyTrendsStage(ctx context.Context, req Request, state *State) error {
	template := prompts.MustGet("research.json", "key-trends-query")
	query := prompts.Format(template, map[string]string{
		"Name":               req.Name,
		"ProductDescription": req.ProductDescription,
	})

	report, err := o.deps.Research.Run(ctx, query, o.config.ResearchBreadth, o.config.ResearchDepth)
	if err != nil || report == "" {
		if err != nil {
			return fmt.Errorf("key trends analysis failed and returned no report: %w", err)
		}
		return fmt.Errorf("key trends analysis failed and returned no report")
	}

	state.Report = report
	state.ReportJSON = markdown.ParseTrendsReport(report)
	return nil
}

// keywordsStage asks the model for broad search keywords.
func (o *Orchestrator) keywordsStage(ctx context.Context, req Request, state *State) error {
	template := prompts.MustGet("discovery.json", "generate-keywords")
	prompt := prompts.Format(template, map[string]string{
		"ProductDescription": req.ProductDescription,
	})

	response, err := o.deps.LLM.GenerateContent(ctx, prompt, llm.TierLite)
	if err != nil {
		return fmt.Errorf("keyword generation failed: %w", err)
	}

	keywords := ParseKeywords(response)
	if len(keywords) == 0 {
		return fmt.Errorf("keyword generation returned no keywords")
	}
	state.Keywords = keywords
	return nil
}

// filterSubreddits classifies all found subreddits in a single batched call.
// Any failure or malformed response degrades to an empty result.
func (o *Orchestrator) filterSubreddits(ctx context.Context, req Request, state *State) []types.Subreddit {
	if len(state.FoundSubreddits) == 0 {
		return []types.Subreddit{}
	}

	lines := make([]string, 0, len(state.FoundSubreddits))
	for i, sub := range state.FoundSubreddits {
		lines = append(lines, reddit.FormatSubredditLine(i+1, sub))
	}

	template := prompts.MustGet("discovery.json", "filter-subreddits")
	prompt := prompts.Format(template, map[string]string{
		"ProductDescription": req.ProductDescription,
		"Keywords":           strings.Join(state.Keywords, ", "),
		"Subreddits":         strings.Join(lines, "\n"),
	})

	response, err := o.deps.LLM.GenerateContent(ctx, prompt, llm.TierLite)
	if err != nil {
		o.log(req, fmt.Sprintf("Subreddit filtering failed: %v", err))
		return []types.Subreddit{}
	}

	return MatchSubredditNames(state.FoundSubreddits, response)
}

// scrapeStage scrapes each relevant subreddit. A failed subreddit is logged
// and skipped; the stage succeeds on whatever it could collect.
func (o *Orchestrator) scrapeStage(ctx context.Context, req Request, state *State) {
	state.Scraped = []types.PostCollection{}
	for i, sub := range state.FilteredSubreddits {
		o.log(req, fmt.Sprintf("Scraping subreddit %s (%d/%d)...", sub.Name, i+1, len(state.FilteredSubreddits)))

		collection, err := o.deps.Discussions.ScrapeSubreddit(ctx, sub, o.config.PostsPerSub)
		if err != nil {
			o.log(req, fmt.Sprintf("Error scraping subreddit %s: %v", sub.Name, err))
		}
		if len(collection.Posts) > 0 {
			state.Scraped = append(state.Scraped, collection)
		}

		if i < len(state.FilteredSubreddits)-1 {
			o.scrapeDelay()
		}
	}
}

// filterPosts classifies all scraped posts in fixed-size batches. A failed or
// malformed batch contributes zero relevant posts instead of failing the run.
func (o *Orchestrator) filterPosts(ctx context.Context, req Request, state *State) []FilteredPost {
	numbered := NumberPosts(state.Scraped)
	if len(numbered) == 0 {
		return []FilteredPost{}
	}

	template := prompts.MustGet("discovery.json", "filter-posts")
	batches := BatchPosts(numbered, o.config.PostBatchSize)

	filtered := []FilteredPost{}
	for i, batch := range batches {
		prompt := prompts.Format(template, map[string]string{
			"ProductDescription": req.ProductDescription,
			"Posts":              RenderPostBatch(batch),
		})

		response, err := o.deps.LLM.GenerateContent(ctx, prompt, llm.TierLite)
		if err != nil {
			o.log(req, fmt.Sprintf("Post filter batch %d/%d failed: %v", i+1, len(batches), err))
			continue
		}

		matched := MatchPostIDs(batch, response)
		filtered = append(filtered, matched...)

		if i < len(batches)-1 {
			o.batchDelay()
		}
	}
	return filtered
}

// analyzeWithReport runs one analysis pass over the report and filtered posts.
func (o *Orchestrator) analyzeWithReport(ctx context.Context, state *State, promptKey string) (string, error) {
	userPrompt := prompts.MustGet("analysis.json", promptKey)

	postsJSON, err := json.MarshalIndent(state.FilteredPosts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode filtered posts: %w", err)
	}

	wrapper := prompts.MustGet("analysis.json", "report-and-posts")
	prompt := prompts.Format(wrapper, map[string]string{
		"Report":     state.Report,
		"Posts":      string(postsJSON),
		"UserPrompt": userPrompt,
	})

	text, err := o.deps.LLM.GenerateContent(ctx, prompt, llm.TierStandard)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("model returned no response")
	}
	return text, nil
}

// recapStage ranks the jobs, pains and gains found so far.
func (o *Orchestrator) recapStage(ctx context.Context, state *State) error {
	template := prompts.MustGet("analysis.json", "recap")
	prompt := prompts.Format(template, map[string]string{
		"JTBD":  state.JTBD,
		"Pains": state.Pains,
		"Gains": state.Gains,
	})

	text, err := o.deps.LLM.GenerateContent(ctx, prompt, llm.TierStandard)
	if err != nil {
		return fmt.Errorf("recap analysis failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("recap analysis returned no response")
	}
	state.Recap = text
	return nil
}

// finalSynthesisStage merges the four analyses into the final report. A
// missing report is a hard failure; a report that parses to nothing is kept
// as an error-wrapped raw text so the run can still finish.
func (o *Orchestrator) finalSynthesisStage(ctx context.Context, state *State) error {
	template := prompts.MustGet("analysis.json", "final-synthesis")
	prompt := prompts.Format(template, map[string]string{
		"JTBD":  state.JTBD,
		"Pains": state.Pains,
		"Gains": state.Gains,
		"Recap": state.Recap,
	})

	text, err := o.deps.LLM.GenerateContent(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return fmt.Errorf("final analysis generation failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("final analysis generation failed and returned no result")
	}

	state.FinalAnalysis = text
	parsed := markdown.ParseFinalAnalysis(text)
	if parsed.Title == "" && len(parsed.Sections) == 0 {
		state.FinalAnalysisJSON = map[string]any{"error": text}
	} else {
		state.FinalAnalysisJSON = parsed
	}
	return nil
}

// personasStage generates personas and the project overview.
func (o *Orchestrator) personasStage(ctx context.Context, req Request, state *State) error {
	personas, err := o.deps.Personas.Generate(ctx, req.ProductDescription, state.FinalAnalysis, o.config.PersonaCount)
	if err != nil {
		return fmt.Errorf("persona generation failed: %w", err)
	}
	if len(personas) == 0 {
		return fmt.Errorf("persona generation failed or returned empty list")
	}
	state.Personas = personas
	o.log(req, fmt.Sprintf("Generated %d personas structure in memory.", len(personas)))

	overview, err := o.deps.Overview.Generate(ctx, state.Report, req.ProductDescription, state.FinalAnalysis)
	if err != nil {
		return fmt.Errorf("overview generation failed: %w", err)
	}
	state.Overview = overview
	return nil
}

// persistAndNotify writes the run's artifacts and sends the completion email.
// Failures here are logged and absorbed: the analytical work already
// succeeded and its results are not retracted over a bookkeeping error.
func (o *Orchestrator) persistAndNotify(ctx context.Context, req Request, results *Results) {
	if err := o.deps.Store.SaveResults(ctx, req.ProjectID, results); err != nil {
		o.log(req, fmt.Sprintf("Failed to save analysis results or personas: %v", err))
		return
	}

	email, err := o.deps.Store.GetUserEmail(ctx, req.ProjectID)
	if err != nil || email == "" {
		o.log(req, "Could not find user email to send notification.")
		return
	}

	if err := o.deps.Notifier.SendProjectReady(ctx, email, req.Name); err != nil {
		o.log(req, fmt.Sprintf("Failed to send notification email: %v", err))
	}
}

// fail reports a hard failure on every channel and marks the project failed.
func (o *Orchestrator) fail(ctx context.Context, req Request, message string) {
	o.log(req, message)
	o.deps.Reporter.ReportStatus(req.TaskID, StatusFailed, "error", message)
	if err := o.deps.Store.SetProjectFailed(ctx, req.ProjectID, message); err != nil {
		o.log(req, fmt.Sprintf("Failed to mark project failed: %v", err))
	}
}

func (o *Orchestrator) status(req Request, status Status) {
	o.deps.Reporter.ReportStatus(req.TaskID, status, "", nil)
}

func (o *Orchestrator) log(req Request, message string) {
	o.deps.Reporter.Log(req.TaskID, message)
}

// timingSummary renders the per-stage timing breakdown logged at the end of
// a successful run.
func timingSummary(taskID string, total time.Duration, timings []StageTiming) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TIMING SUMMARY for Task %s:\n", taskID)
	fmt.Fprintf(&b, "Total Time: %.2fs (%.1f minutes)\n\n", total.Seconds(), total.Minutes())
	b.WriteString("Step-by-step breakdown:\n")
	for _, t := range timings {
		percentage := 0.0
		if total > 0 {
			percentage = t.Duration.Seconds() / total.Seconds() * 100
		}
		fmt.Fprintf(&b, "  - %s: %.2fs (%.1f%%)\n", t.Name, t.Duration.Seconds(), percentage)
	}
	return strings.TrimRight(b.String(), "\n")
}
