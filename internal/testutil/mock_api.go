// Package testutil provides a mock data modeling API server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MaxItems is the per-request item ceiling the mock enforces.
const MaxItems = 1000

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

type storedInstance struct {
	InstanceType    string                                           `json:"instanceType"`
	Space           string                                           `json:"space"`
	ExternalID      string                                           `json:"externalId"`
	Version         int                                              `json:"version"`
	CreatedTime     int64                                            `json:"createdTime"`
	LastUpdatedTime int64                                            `json:"lastUpdatedTime"`
	Properties      map[string]map[string]map[string]json.RawMessage `json:"properties,omitempty"`
}

type wireID struct {
	InstanceType string `json:"instanceType"`
	Space        string `json:"space"`
	ExternalID   string `json:"externalId"`
}

func (id wireID) key() string {
	return id.InstanceType + ":" + id.Space + "/" + id.ExternalID
}

type wireSource struct {
	Source struct {
		Space      string `json:"space"`
		ExternalID string `json:"externalId"`
		Version    string `json:"version"`
	} `json:"source"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// MockAPI is an in-memory data modeling instances API. Requests for a path can
// be made to fail with FailNext before they reach the store.
type MockAPI struct {
	server  *httptest.Server
	project string

	mu        sync.Mutex
	instances map[string]*storedInstance
	failures  map[string][]MockResponse
	handlers  map[string]http.HandlerFunc
	counts    map[string]int
	inFlight  int
	peak      int

	LastRequestHeader http.Header
}

// NewMockAPI starts a mock server for project.
func NewMockAPI(project string) *MockAPI {
	m := &MockAPI{
		project:   project,
		instances: make(map[string]*storedInstance),
		failures:  make(map[string][]MockResponse),
		handlers:  make(map[string]http.HandlerFunc),
		counts:    make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the base URL to configure the client with.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears counters and queued failures. Stored instances are kept.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string][]MockResponse)
	m.counts = make(map[string]int)
	m.peak = 0
	m.LastRequestHeader = nil
}

// SetHandler replaces the handler for a project-relative path such as
// "models/instances/list".
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// FailNext queues responses returned for the next requests to path, in order.
func (m *MockAPI) FailNext(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = append(m.failures[path], responses...)
}

// RequestCount returns the number of requests received for path.
func (m *MockAPI) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[path]
}

// PeakConcurrency returns the highest number of requests in flight at once.
func (m *MockAPI) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// InstanceCount returns the number of stored instances.
func (m *MockAPI) InstanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// Header returns the headers of the last request.
func (m *MockAPI) Header() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastRequestHeader.Clone()
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/projects/" + m.project + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusNotFound, "unknown project or path "+r.URL.Path)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	m.mu.Lock()
	m.counts[path]++
	m.LastRequestHeader = r.Header.Clone()
	m.inFlight++
	m.peak = max(m.peak, m.inFlight)
	var failure *MockResponse
	if queued := m.failures[path]; len(queued) > 0 {
		failure = &queued[0]
		m.failures[path] = queued[1:]
	}
	handler := m.handlers[path]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if failure != nil {
		writeMock(w, *failure)
		return
	}
	if handler != nil {
		handler(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch path {
	case "models/instances":
		m.handleUpsert(w, body)
	case "models/instances/delete":
		m.handleDelete(w, body)
	case "models/instances/byids":
		m.handleByIDs(w, body)
	case "models/instances/list":
		m.handleList(w, body)
	case "models/instances/search":
		m.handleSearch(w, body)
	case "models/instances/aggregate":
		m.handleAggregate(w, body)
	default:
		writeError(w, http.StatusNotFound, "unknown path "+path)
	}
}

func (m *MockAPI) handleUpsert(w http.ResponseWriter, body []byte) {
	var req struct {
		Items []struct {
			wireID
			Sources []wireSource `json:"sources"`
		} `json:"items"`
		Replace bool `json:"replace"`
	}
	if !decode(w, body, &req) || !checkItems(w, len(req.Items)) {
		return
	}

	now := time.Now().UnixMilli()
	results := make([]map[string]any, 0, len(req.Items))

	m.mu.Lock()
	for _, item := range req.Items {
		inst, ok := m.instances[item.key()]
		if !ok {
			inst = &storedInstance{
				InstanceType: item.InstanceType,
				Space:        item.Space,
				ExternalID:   item.ExternalID,
				CreatedTime:  now,
			}
			m.instances[item.key()] = inst
		}
		if req.Replace || inst.Properties == nil {
			inst.Properties = make(map[string]map[string]map[string]json.RawMessage)
		}
		for _, src := range item.Sources {
			views, ok := inst.Properties[src.Source.Space]
			if !ok {
				views = make(map[string]map[string]json.RawMessage)
				inst.Properties[src.Source.Space] = views
			}
			viewKey := src.Source.ExternalID + "/" + src.Source.Version
			props, ok := views[viewKey]
			if !ok {
				props = make(map[string]json.RawMessage)
				views[viewKey] = props
			}
			for k, v := range src.Properties {
				props[k] = v
			}
		}
		inst.Version++
		inst.LastUpdatedTime = now

		results = append(results, map[string]any{
			"instanceType":    inst.InstanceType,
			"space":           inst.Space,
			"externalId":      inst.ExternalID,
			"version":         inst.Version,
			"wasModified":     true,
			"createdTime":     inst.CreatedTime,
			"lastUpdatedTime": inst.LastUpdatedTime,
		})
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"items": results})
}

func (m *MockAPI) handleDelete(w http.ResponseWriter, body []byte) {
	var req struct {
		Items []wireID `json:"items"`
	}
	if !decode(w, body, &req) || !checkItems(w, len(req.Items)) {
		return
	}

	m.mu.Lock()
	for _, id := range req.Items {
		delete(m.instances, id.key())
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"items": req.Items})
}

func (m *MockAPI) handleByIDs(w http.ResponseWriter, body []byte) {
	var req struct {
		Items            []wireID `json:"items"`
		IgnoreUnknownIDs bool     `json:"ignoreUnknownIds"`
	}
	if !decode(w, body, &req) || !checkItems(w, len(req.Items)) {
		return
	}

	items := make([]storedInstance, 0, len(req.Items))
	var missing []string
	m.mu.Lock()
	for _, id := range req.Items {
		if inst, ok := m.instances[id.key()]; ok {
			items = append(items, *inst)
		} else {
			missing = append(missing, id.ExternalID)
		}
	}
	m.mu.Unlock()

	if len(missing) > 0 && !req.IgnoreUnknownIDs {
		writeMock(w, NewBadRequestResponse("Instances not found", missing...))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (m *MockAPI) handleList(w http.ResponseWriter, body []byte) {
	var req struct {
		InstanceType string `json:"instanceType"`
		Limit        int    `json:"limit"`
		Cursor       string `json:"cursor"`
	}
	if !decode(w, body, &req) {
		return
	}
	if req.Limit < 1 || req.Limit > MaxItems {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be in [1, %d], got %d", MaxItems, req.Limit))
		return
	}

	offset := 0
	if req.Cursor != "" {
		var err error
		if offset, err = strconv.Atoi(req.Cursor); err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
	}

	all := m.sorted(req.InstanceType)
	offset = min(offset, len(all))
	end := min(offset+req.Limit, len(all))

	resp := map[string]any{"items": all[offset:end]}
	if end < len(all) {
		resp["nextCursor"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *MockAPI) handleSearch(w http.ResponseWriter, body []byte) {
	var req struct {
		InstanceType string `json:"instanceType"`
		Limit        int    `json:"limit"`
	}
	if !decode(w, body, &req) {
		return
	}
	if req.Limit < 1 || req.Limit > MaxItems {
		writeError(w, http.StatusBadRequest, "limit out of range")
		return
	}

	all := m.sorted(req.InstanceType)
	writeJSON(w, http.StatusOK, map[string]any{"items": all[:min(req.Limit, len(all))]})
}

func (m *MockAPI) handleAggregate(w http.ResponseWriter, body []byte) {
	var req struct {
		InstanceType string `json:"instanceType"`
	}
	if !decode(w, body, &req) {
		return
	}

	count := len(m.sorted(req.InstanceType))
	instanceType := req.InstanceType
	if instanceType == "" {
		instanceType = "node"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": []map[string]any{{
			"instanceType": instanceType,
			"aggregates": []map[string]any{{
				"aggregate": "count",
				"property":  "externalId",
				"value":     count,
			}},
		}},
	})
}

// sorted returns stored instances of instanceType ordered by key. An empty
// instanceType means nodes.
func (m *MockAPI) sorted(instanceType string) []storedInstance {
	if instanceType == "" {
		instanceType = "node"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.instances))
	for k, inst := range m.instances {
		if inst.InstanceType == instanceType {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	out := make([]storedInstance, len(keys))
	for i, k := range keys {
		out[i] = *m.instances[k]
	}
	return out
}

func decode(w http.ResponseWriter, body []byte, v any) bool {
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func checkItems(w http.ResponseWriter, n int) bool {
	if n > MaxItems {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d items per request, got %d", MaxItems, n))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

func writeMock(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewRateLimitResponse creates a 429 response with a Retry-After header.
func NewRateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": {"code": 429, "message": "Too many requests"}}`,
		Headers: map[string]string{
			"Retry-After":  retryAfter,
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 503 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error": {"code": 503, "message": "Service unavailable"}}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewBadRequestResponse creates a 400 response listing missing ids.
func NewBadRequestResponse(message string, missing ...string) MockResponse {
	items := make([]map[string]string, len(missing))
	for i, xid := range missing {
		items[i] = map[string]string{"externalId": xid}
	}
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{"code": 400, "message": message, "missing": items},
	})
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
