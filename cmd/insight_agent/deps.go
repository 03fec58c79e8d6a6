package main

import (
	"context"
	"fmt"

	"github.com/nextraction/insight-engine/internal/config"
	"github.com/nextraction/insight-engine/internal/llm"
	"github.com/nextraction/insight-engine/internal/notify"
	"github.com/nextraction/insight-engine/internal/overview"
	"github.com/nextraction/insight-engine/internal/personas"
	"github.com/nextraction/insight-engine/internal/pipeline"
	"github.com/nextraction/insight-engine/internal/reddit"
	"github.com/nextraction/insight-engine/internal/research"
)

// buildOrchestrator wires the pipeline collaborators from config. The
// returned cleanup releases the model client.
func buildOrchestrator(ctx context.Context, cfg config.Config, store pipeline.ResultStore, reporter pipeline.Reporter) (*pipeline.Orchestrator, func(), error) {
	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create model client: %w", err)
	}

	var redditOpts []reddit.Option
	if cfg.RedditURL != "" {
		redditOpts = append(redditOpts, reddit.WithBaseURL(cfg.RedditURL))
	}

	mailer := notify.NewMailer(notify.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Sender:   cfg.SMTPSender,
		Password: cfg.SMTPPassword,
	})

	pipelineCfg := pipeline.DefaultConfig()
	if cfg.ResearchBreadth > 0 {
		pipelineCfg.ResearchBreadth = cfg.ResearchBreadth
	}
	if cfg.ResearchDepth > 0 {
		pipelineCfg.ResearchDepth = cfg.ResearchDepth
	}
	if cfg.PersonaCount > 0 {
		pipelineCfg.PersonaCount = cfg.PersonaCount
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Research:    research.NewClient(cfg.ResearchURL),
		LLM:         client,
		Discussions: reddit.NewClient(redditOpts...),
		Personas:    personas.NewGenerator(client),
		Overview:    overview.NewGenerator(client),
		Store:       store,
		Notifier:    mailer,
		Reporter:    reporter,
	}, pipeline.WithConfig(pipelineCfg))

	cleanup := func() { _ = client.Close() }
	return orchestrator, cleanup, nil
}
