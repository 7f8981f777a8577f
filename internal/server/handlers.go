package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v57/github"
	"github.com/google/uuid"

	"github.com/ramparte/deployotron/internal/security"
	"github.com/ramparte/deployotron/internal/store"
)

const (
	MaxPayloadBytes        = 1_000_000 // 1 MB
	RecentDeploymentsLimit = 10
	MaxListLimit           = 100
)

// HandleHealth handles health check requests.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"projects":      s.Registry.List(),
		"project_count": s.Registry.Count(),
	})
}

// HandleTriggerDeployment starts a deployment for a project. The run is
// asynchronous: the response carries the deployment id to poll or stream.
func (s *Server) HandleTriggerDeployment(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")

	if err := security.ValidateProjectName(projectName); err != nil {
		s.Logger.Warn("Invalid project name in trigger request", "project", projectName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid project name: %v", err)})
		return
	}

	if _, err := s.Registry.Get(projectName); err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown project"})
		return
	}

	if !s.Locks.TryLock(projectName) {
		s.Logger.Warn("Deployment already in progress, rejecting", "project", projectName)
		if s.Metrics != nil {
			s.Metrics.ObserveRejection()
		}
		s.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Deployment already in progress"})
		return
	}

	deploymentID := uuid.NewString()
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"message":       "Deployment accepted",
		"project":       projectName,
		"deployment_id": deploymentID,
	})

	s.runDeployment(projectName, deploymentID)
}

// HandleGetDeployment returns one deployment record.
func (s *Server) HandleGetDeployment(w http.ResponseWriter, r *http.Request) {
	deploymentID := chi.URLParam(r, "deploymentID")

	record, err := s.Store.GetDeployment(r.Context(), deploymentID)
	if err != nil {
		s.Logger.Error("Failed to load deployment", "deployment_id", deploymentID, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment"})
		return
	}
	if record == nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown deployment"})
		return
	}

	s.respondJSON(w, http.StatusOK, record)
}

// HandleListDeployments returns recent deployments for a project, newest
// first. An optional "limit" query parameter caps the page size.
func (s *Server) HandleListDeployments(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")

	if _, err := s.Registry.Get(projectName); err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown project"})
		return
	}

	limit := RecentDeploymentsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > MaxListLimit {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := s.Store.ListDeployments(r.Context(), projectName, limit)
	if err != nil {
		s.Logger.Error("Failed to list deployments", "project", projectName, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployments"})
		return
	}
	if records == nil {
		records = []store.Deployment{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"project":     projectName,
		"deployments": records,
	})
}

// HandleStatus reports the latest deployment plus recent history.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")

	if err := security.ValidateProjectName(projectName); err != nil {
		s.Logger.Warn("Invalid project name in status request", "project", projectName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid project name: %v", err)})
		return
	}

	if _, err := s.Registry.Get(projectName); err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown project"})
		return
	}

	latest, err := s.Store.LatestDeployment(r.Context(), projectName)
	if err != nil {
		s.Logger.Error("Failed to get latest deployment", "project", projectName, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	recent, err := s.Store.ListDeployments(r.Context(), projectName, RecentDeploymentsLimit)
	if err != nil {
		s.Logger.Error("Failed to get deployment history", "project", projectName, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"project":            projectName,
		"deploying":          s.Locks.Locked(projectName),
		"latest_deployment":  latest,
		"recent_deployments": recent,
	})
}

// HandleWebhook handles GitHub push webhook requests.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")

	if err := security.ValidateProjectName(projectName); err != nil {
		s.Logger.Warn("Invalid project name in webhook request", "project", projectName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid project name: %v", err)})
		return
	}

	proj, err := s.Registry.Get(projectName)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown project"})
		return
	}

	// Projects without a secret have webhooks disabled.
	if proj.Secret == "" {
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Webhook not configured for project"})
		return
	}

	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	if r.Header.Get("Content-Type") != "application/json" {
		s.respondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Invalid content type"})
		return
	}

	if r.Header.Get("X-GitHub-Event") != "push" {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Ignoring non-push event"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err, "project", projectName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if !VerifySignature(body, signature, proj.Secret) {
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
		return
	}

	var event github.PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.Logger.Error("Failed to parse push payload", "error", err, "project", projectName)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	// Only pushes to the configured branch deploy.
	if event.GetRef() != "refs/heads/"+proj.Branch {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Not target branch, skipping"})
		return
	}

	if !s.Locks.TryLock(projectName) {
		s.Logger.Warn("Deployment already in progress, rejecting", "project", projectName)
		if s.Metrics != nil {
			s.Metrics.ObserveRejection()
		}
		s.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Deployment already in progress"})
		return
	}

	// Respond before running: GitHub webhooks time out after 10 seconds,
	// so the deployment proceeds asynchronously.
	deploymentID := uuid.NewString()
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"message":       "Deployment accepted",
		"project":       projectName,
		"deployment_id": deploymentID,
	})

	s.runDeployment(projectName, deploymentID)
}

// runDeployment executes a deployment asynchronously, holding the project
// lock for its duration.
func (s *Server) runDeployment(projectName, deploymentID string) {
	s.deployWg.Add(1)
	go func() {
		defer s.deployWg.Done()
		defer s.Locks.Unlock(projectName)

		start := time.Now()
		record, err := s.Orch.Deploy(context.Background(), projectName, deploymentID)
		if err != nil {
			s.Logger.Error("deployment failed", "project", projectName, "deployment_id", deploymentID, "error", err)
		} else {
			s.Logger.Info("deployment completed", "project", projectName, "deployment_id", deploymentID, "status", record.Status)
		}

		if s.Metrics != nil && record != nil {
			s.Metrics.ObserveDeployment(projectName, record.Status, time.Since(start))
		}
	}()
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}
