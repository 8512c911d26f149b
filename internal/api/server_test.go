package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alphalens/alphalens/internal/adapters/config"
	"github.com/alphalens/alphalens/internal/agent"
	"github.com/alphalens/alphalens/internal/jobs"
	"github.com/alphalens/alphalens/pkg/models"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[string]*models.AnalysisJob
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*models.AnalysisJob)}
}

func (m *memStore) Create(_ context.Context, job *models.AnalysisJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (m *memStore) List(_ context.Context, ownerID string, limit int) ([]models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AnalysisJob
	for _, job := range m.jobs {
		if job.OwnerID == ownerID {
			out = append(out, *job)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id string, patch jobs.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Progress != nil {
		job.Progress = *patch.Progress
	}
	if patch.CurrentStep != nil {
		job.CurrentStep = *patch.CurrentStep
	}
	if patch.FinalResult != nil {
		job.FinalResult = patch.FinalResult
	}
	if patch.Error != nil {
		job.Error = patch.Error
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) FailStale(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type blockedRunner struct{}

func (blockedRunner) Run(ctx context.Context, _ agent.RunRequest) *models.AgentResult {
	<-ctx.Done()
	return &models.AgentResult{}
}

func testServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := jobs.NewService(store, blockedRunner{}, nil, config.AgentConfig{MaxConcurrentRuns: 2})
	ts := httptest.NewServer(NewServer("0", svc).Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func doRequest(t *testing.T, method, url, owner, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf
}

func TestSubmitEndpoint(t *testing.T) {
	ts, _ := testServer(t)

	t.Run("accepts a valid request", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/analyses", "u1",
			`{"symbol": "aapl", "analysis_type": "stock"}`)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want 202: %s", resp.StatusCode, body)
		}

		var job models.AnalysisJob
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if job.Symbol != "AAPL" || job.Status != models.JobPending {
			t.Errorf("unexpected job: %+v", job)
		}
		if job.ID == "" {
			t.Error("job ID missing")
		}
	})

	t.Run("rejects bad JSON", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/analyses", "u1", `{nope`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("rejects unknown analysis type", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/analyses", "u1",
			`{"symbol": "AAPL", "analysis_type": "tarot"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestGetEndpoint(t *testing.T) {
	ts, _ := testServer(t)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/analyses", "u1",
		`{"symbol": "TSLA", "analysis_type": "technical"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit failed: %s", body)
	}
	var created models.AnalysisJob
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	t.Run("owner sees the job", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/analyses/"+created.ID, "u1", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d: %s", resp.StatusCode, body)
		}
		var job models.AnalysisJob
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if job.ID != created.ID {
			t.Errorf("got job %s, want %s", job.ID, created.ID)
		}
	})

	t.Run("other owner gets 404", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/analyses/"+created.ID, "u2", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("unknown id gets 404", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/analyses/nonexistent", "u1", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestListEndpoint(t *testing.T) {
	ts, _ := testServer(t)

	for _, sym := range []string{"AAPL", "TSLA"} {
		resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/analyses", "u1",
			`{"symbol": "`+sym+`", "analysis_type": "stock"}`)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("submit failed: %s", body)
		}
	}

	t.Run("returns owner jobs", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/analyses", "u1", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d: %s", resp.StatusCode, body)
		}
		var payload struct {
			Jobs []models.AnalysisJob `json:"jobs"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(payload.Jobs) != 2 {
			t.Errorf("got %d jobs, want 2", len(payload.Jobs))
		}
	})

	t.Run("empty list for unknown owner", func(t *testing.T) {
		_, body := doRequest(t, http.MethodGet, ts.URL+"/api/analyses", "nobody", "")
		var payload struct {
			Jobs []models.AnalysisJob `json:"jobs"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload.Jobs == nil || len(payload.Jobs) != 0 {
			t.Errorf("want empty array, got %v", payload.Jobs)
		}
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/analyses?limit=-1", "u1", "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestCancelEndpoint(t *testing.T) {
	ts, _ := testServer(t)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/analyses", "u1",
		`{"symbol": "AAPL", "analysis_type": "stock"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit failed: %s", body)
	}
	var created models.AnalysisJob
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	t.Run("cancels a live job", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/analyses/"+created.ID+"/cancel", "u1", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d: %s", resp.StatusCode, body)
		}
		var job models.AnalysisJob
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if job.Status != models.JobCancelled {
			t.Errorf("status = %s, want cancelled", job.Status)
		}
	})

	t.Run("second cancel conflicts", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/analyses/"+created.ID+"/cancel", "u1", "")
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("unknown id gets 404", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/analyses/nope/cancel", "u1", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}
