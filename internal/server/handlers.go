package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nextraction/insight-engine/internal/db"
	"github.com/nextraction/insight-engine/internal/pipeline"
)

// StartAnalysisRequest is the body of POST /start_analysis.
type StartAnalysisRequest struct {
	UserID             string `json:"user_id" validate:"required"`
	Name               string `json:"name" validate:"required"`
	Industry           string `json:"industry"`
	ProductDescription string `json:"product_description" validate:"required"`
	Stage              string `json:"stage"`
}

// StartAnalysisResponse carries the task ID to poll or stream.
type StartAnalysisResponse struct {
	TaskID string `json:"task_id"`
}

// handleStartAnalysis creates the pending project row and starts the
// analysis in the background. The project insert must succeed before the
// worker is started; a task ID is only handed out for a project that exists.
func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req StartAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	taskID := uuid.NewString()
	projectID := uuid.NewString()

	if err := s.projects.CreateProject(r.Context(), db.NewProject{
		ID:          projectID,
		UserID:      req.UserID,
		Name:        req.Name,
		Industry:    req.Industry,
		Stage:       req.Stage,
		Description: req.ProductDescription,
	}); err != nil {
		log.Printf("CRITICAL: Failed to insert project: %v", err)
		http.Error(w, "Failed to create project.", http.StatusInternalServerError)
		return
	}

	if err := s.registry.Create(taskID); err != nil {
		http.Error(w, "Failed to register task.", http.StatusInternalServerError)
		return
	}

	runReq := pipeline.Request{
		TaskID:             taskID,
		ProjectID:          projectID,
		Name:               req.Name,
		ProductDescription: req.ProductDescription,
		Industry:           req.Industry,
		StageLabel:         req.Stage,
		RequesterID:        req.UserID,
	}

	// The run outlives this request
	go func() {
		if _, err := s.runner.Run(context.Background(), runReq); err != nil {
			log.Printf("Analysis failed for task %s: %v", taskID, err)
		}
	}()

	writeJSON(w, http.StatusOK, StartAnalysisResponse{TaskID: taskID})
}

// handleTaskStatus returns the task's current status, data and logs.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleHealth is the liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// extractValidationErrors formats validator errors into a readable message
func extractValidationErrors(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return "Invalid request"
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s is %s", fieldError.Field(), fieldError.Tag()))
	}
	return "Validation failed: " + strings.Join(messages, ", ")
}
