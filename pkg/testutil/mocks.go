package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockApifyServer fakes the Apify actor API used for content scraping.
// Tests script per-actor datasets and inspect the requests that arrived.
type MockApifyServer struct {
	Server *httptest.Server

	mu            sync.RWMutex
	datasets      map[string]interface{}
	requestLog    []MockRequest
	shouldFail    bool
	failureStatus int
}

// MockRequest records one call made against the mock server.
type MockRequest struct {
	Method        string
	Path          string
	Actor         string
	Authorization string
	Body          []byte
	Timestamp     time.Time
}

func NewMockApifyServer() *MockApifyServer {
	mock := &MockApifyServer{
		datasets:      make(map[string]interface{}),
		failureStatus: http.StatusInternalServerError,
	}
	mock.Server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

func (m *MockApifyServer) URL() string {
	return m.Server.URL
}

func (m *MockApifyServer) Close() {
	m.Server.Close()
}

// SetDataset scripts the dataset items an actor run returns.
func (m *MockApifyServer) SetDataset(actor string, items interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[actor] = items
}

// Fail makes every subsequent actor call return the given status.
func (m *MockApifyServer) Fail(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = true
	m.failureStatus = status
}

func (m *MockApifyServer) Requests() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockRequest, len(m.requestLog))
	copy(out, m.requestLog)
	return out
}

// LastRequest returns the most recent call, or nil when none arrived.
func (m *MockApifyServer) LastRequest() *MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requestLog) == 0 {
		return nil
	}
	last := m.requestLog[len(m.requestLog)-1]
	return &last
}

func (m *MockApifyServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	actor := ""
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "acts" {
		actor = parts[1]
	}

	m.mu.Lock()
	m.requestLog = append(m.requestLog, MockRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Actor:         actor,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
		Timestamp:     time.Now(),
	})
	shouldFail := m.shouldFail
	failureStatus := m.failureStatus
	items, ok := m.datasets[actor]
	m.mu.Unlock()

	if shouldFail {
		w.WriteHeader(failureStatus)
		return
	}

	if actor == "" || r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/run-sync-get-dataset-items") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if !ok {
		items = []interface{}{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}
