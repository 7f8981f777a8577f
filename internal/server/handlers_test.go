package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ramparte/deployotron/internal/orchestrator"
	"github.com/ramparte/deployotron/internal/project"
	"github.com/ramparte/deployotron/internal/shadow"
	"github.com/ramparte/deployotron/internal/store"
)

const testSecret = "test-secret-at-least-32-chars-long-here"

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	testProject := &project.Project{
		ID:            "test-project",
		Name:          "test-project",
		RepositoryURL: "https://github.com/acme/test-project-express",
		Branch:        "main",
		Cluster:       "prod",
		Service:       "test-svc",
		Registry:      "test-project",
		Secret:        testSecret,
	}
	registry := project.NewRegistry(map[string]*project.Project{
		"test-project": testProject,
	})

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), registry)
	if err != nil {
		t.Fatalf("store.New error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	state := shadow.NewState()
	hub := NewHub(logger)
	orch := orchestrator.New(
		shadow.NewRepoOps(state, 0, false, logger),
		shadow.NewDeployOps(state, 0, false, logger),
		st, hub, logger,
		orchestrator.Options{PollInterval: time.Millisecond, PollTimeout: time.Second},
	)

	server := NewServer(registry, st, orch, hub, nil, logger, true)
	t.Cleanup(func() {
		server.WaitForDeployments()
		st.Close()
	})
	return server
}

func pushPayload(t *testing.T, ref string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"ref":   ref,
		"after": "abcdef1234567890abcdef1234567890abcdef12",
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response["status"] != "ok" {
		t.Errorf("status = %v", response["status"])
	}
	if response["project_count"] != float64(1) {
		t.Errorf("project_count = %v", response["project_count"])
	}
}

func TestHandleTriggerDeployment(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest("POST", "/api/projects/test-project/deployments", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", rr.Code)
	}

	var response map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	deploymentID := response["deployment_id"]
	if deploymentID == "" {
		t.Fatal("response carries no deployment_id")
	}

	server.WaitForDeployments()

	// The record is queryable and terminal after the run finishes.
	req = httptest.NewRequest("GET", "/api/deployments/"+deploymentID, nil)
	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var record store.Deployment
	if err := json.Unmarshal(rr.Body.Bytes(), &record); err != nil {
		t.Fatal(err)
	}
	if record.Status != store.StatusSuccess {
		t.Errorf("Status = %q, expected success", record.Status)
	}
}

func TestHandleTriggerDeployment_UnknownProject(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest("POST", "/api/projects/ghost/deployments", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestHandleTriggerDeployment_Locked(t *testing.T) {
	server := setupTestServer(t)

	if !server.Locks.TryLock("test-project") {
		t.Fatal("could not pre-lock project")
	}
	defer server.Locks.Unlock("test-project")

	req := httptest.NewRequest("POST", "/api/projects/test-project/deployments", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rr.Code)
	}
}

func TestHandleGetDeployment_Unknown(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/deployments/ghost", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestHandleListDeployments(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/projects/test-project/deployments", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response struct {
		Project     string             `json:"project"`
		Deployments []store.Deployment `json:"deployments"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response.Deployments == nil {
		t.Error("deployments should be an empty list, not null")
	}
}

func TestHandleListDeployments_InvalidLimit(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/projects/test-project/deployments?limit=0", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/projects/test-project/status", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response["project"] != "test-project" {
		t.Errorf("project = %v", response["project"])
	}
	if response["deploying"] != false {
		t.Errorf("deploying = %v", response["deploying"])
	}
}

func TestHandleWebhook_UnknownProject(t *testing.T) {
	server := setupTestServer(t)

	payload := pushPayload(t, "refs/heads/main")
	req := httptest.NewRequest("POST", "/in/ghost", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	server := setupTestServer(t)

	payload := pushPayload(t, "refs/heads/main")
	wrongSignature := MakeTestSignature(payload, "wrong-secret-32-chars-long-xxxxxxx")

	req := httptest.NewRequest("POST", "/in/test-project", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", wrongSignature)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	server := setupTestServer(t)

	payload := pushPayload(t, "refs/heads/main")
	req := httptest.NewRequest("POST", "/in/test-project", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}

func TestHandleWebhook_PayloadTooLarge(t *testing.T) {
	server := setupTestServer(t)

	largePayload := make([]byte, MaxPayloadBytes+1)
	req := httptest.NewRequest("POST", "/in/test-project", bytes.NewReader(largePayload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", rr.Code)
	}
}

func TestHandleWebhook_InvalidContentType(t *testing.T) {
	server := setupTestServer(t)

	payload := pushPayload(t, "refs/heads/main")
	req := httptest.NewRequest("POST", "/in/test-project", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-GitHub-Event", "push")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status 415, got %d", rr.Code)
	}
}

func TestHandleWebhook_NonPushEvent(t *testing.T) {
	server := setupTestServer(t)

	payload := pushPayload(t, "refs/heads/main")
	req := httptest.NewRequest("POST", "/in/test-project", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "ping")
	req.Header.Set("X-Hub-Signature-256", MakeTestSignature(payload, testSecret))

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["message"] != "Ignoring non-push event" {
		t.Errorf("message = %q", response["message"])
	}
}

func TestHandleWebhook_NonTargetBranch(t *testing.T) {
	server := setupTestServer(t)

	payload := pushPayload(t, "refs/heads/feature-x")
	req := httptest.NewRequest("POST", "/in/test-project", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", MakeTestSignature(payload, testSecret))

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &response)
	if response["message"] != "Not target branch, skipping" {
		t.Errorf("message = %q", response["message"])
	}
}

func TestHandleWebhook_AcceptsAndDeploys(t *testing.T) {
	server := setupTestServer(t)

	payload := pushPayload(t, "refs/heads/main")
	req := httptest.NewRequest("POST", "/in/test-project", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", MakeTestSignature(payload, testSecret))

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", rr.Code)
	}

	var response map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response["deployment_id"] == "" {
		t.Fatal("response carries no deployment_id")
	}

	server.WaitForDeployments()

	record, err := server.Store.GetDeployment(req.Context(), response["deployment_id"])
	if err != nil {
		t.Fatalf("GetDeployment error: %v", err)
	}
	if record == nil || !record.Status.Terminal() {
		t.Errorf("record not terminal after deployment: %+v", record)
	}
}

func TestHandleWebhook_SecretNotConfigured(t *testing.T) {
	server := setupTestServer(t)

	proj, _ := server.Registry.Get("test-project")
	proj.Secret = ""
	defer func() { proj.Secret = testSecret }()

	payload := pushPayload(t, "refs/heads/main")
	req := httptest.NewRequest("POST", "/in/test-project", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}
