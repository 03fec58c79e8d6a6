package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/nextraction/insight-engine/internal/pipeline"
	"github.com/nextraction/insight-engine/internal/types"
)

// NewProject is the initial project row created when an analysis is started.
type NewProject struct {
	ID          string
	UserID      string
	Name        string
	Industry    string
	Stage       string
	Description string
}

// CreateProject inserts a project in the pending state. The row exists before
// the background worker starts so the dashboard can show it immediately.
func (db *DB) CreateProject(ctx context.Context, p NewProject) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO projects (id, user_id, name, industry, stage, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending')`,
		p.ID, p.UserID, p.Name, p.Industry, p.Stage, p.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// SaveResults stores the finished run on the project row and inserts one
// persona row per generated persona. The project update and the persona
// inserts are independent writes and run concurrently.
func (db *DB) SaveResults(ctx context.Context, projectID string, results *pipeline.Results) error {
	analysis, err := json.Marshal(analysisDocument(results))
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	overview, err := json.Marshal(results.Overview)
	if err != nil {
		return fmt.Errorf("failed to marshal overview: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := db.pool.Exec(ctx,
			`UPDATE projects
			 SET overview = $1, analysis = $2, status = 'personas_ready', locked = false
			 WHERE id = $3`,
			overview, analysis, projectID,
		)
		if err != nil {
			return fmt.Errorf("failed to update project %s: %w", projectID, err)
		}
		return nil
	})

	for _, persona := range results.Personas {
		persona := persona
		g.Go(func() error {
			return db.insertPersona(ctx, projectID, persona)
		})
	}

	return g.Wait()
}

// analysisDocument is the shape of the projects.analysis JSON column.
func analysisDocument(results *pipeline.Results) map[string]any {
	timings := make(map[string]float64, len(results.Timings))
	for _, t := range results.Timings {
		timings[t.Name] = t.Duration.Seconds()
	}
	return map[string]any{
		"key_trends":   results.KeyTrends,
		"final":        results.FinalAnalysis,
		"step_timings": timings,
	}
}

func (db *DB) insertPersona(ctx context.Context, projectID string, p types.Persona) error {
	demographics, err := json.Marshal(p.Demographics)
	if err != nil {
		return fmt.Errorf("failed to marshal demographics for %s: %w", p.Name, err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO personas (project_id, name, role, company, description,
		                       pain_points, prompt, goals, demographics, ai_generated)
		 VALUES ($1, $2, $3, 'Not specified', $4, $5, $6, $7, $8, true)`,
		projectID, p.Name, p.Role, p.Description,
		p.PainPoints, p.SystemPrompt, p.Goals, demographics,
	)
	if err != nil {
		return fmt.Errorf("failed to insert persona %s: %w", p.Name, err)
	}
	return nil
}

// GetUserEmail looks up the email of the project's owner. A missing project,
// owner or email yields an empty string rather than an error so the caller
// can treat it as "nobody to notify".
func (db *DB) GetUserEmail(ctx context.Context, projectID string) (string, error) {
	var userID string
	err := db.pool.QueryRow(ctx,
		`SELECT user_id FROM projects WHERE id = $1`, projectID,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up project owner: %w", err)
	}

	var email string
	err = db.pool.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1`, userID,
	).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user email: %w", err)
	}
	return email, nil
}

// SetProjectFailed marks the project failed and records the error message.
func (db *DB) SetProjectFailed(ctx context.Context, projectID, message string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE projects SET status = 'failed', error = $1, locked = false WHERE id = $2`,
		message, projectID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark project failed: %w", err)
	}
	return nil
}
