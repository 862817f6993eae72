package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glance/internal/cache"
	"glance/internal/httpapi"
	"glance/internal/pkg/logger"
	"glance/internal/ports"
	"glance/internal/queue"
	"glance/internal/queue/jobstore"
	"glance/internal/render"
	"glance/internal/worker/processor"
)

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	sources map[string][]byte
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string][]byte{}, sources: map[string][]byte{}}
}

func (s *memObjectStore) Provider() string { return "memory" }

func (s *memObjectStore) ReadObject(ctx context.Context, location string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sources[location]
	if !ok {
		return nil, fmt.Errorf("no object at %s", location)
	}
	return data, nil
}

func (s *memObjectStore) ExistsObject(ctx context.Context, objectKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectKey]
	return ok, nil
}

func (s *memObjectStore) WriteObject(ctx context.Context, in ports.WriteObjectInput) (ports.WriteObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[in.ObjectKey] = in.Data
	return ports.WriteObjectOutput{Location: "memory://" + in.ObjectKey, Size: int64(len(in.Data))}, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []ports.AuditEvent
}

func (e *captureEmitter) Emit(ctx context.Context, ev ports.AuditEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *captureEmitter) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

type failRunner struct{}

func (failRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (render.ToolResult, error) {
	return render.ToolResult{}, fmt.Errorf("tools disabled in tests")
}

type env struct {
	server  *httptest.Server
	store   *memObjectStore
	emitter *captureEmitter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := newMemObjectStore()
	emitter := &captureEmitter{}
	log := logger.New(logger.Config{Level: "error", Format: "text"})
	writer := cache.NewWriter(store)
	jobs := jobstore.NewMemory()

	proc := processor.New(processor.Deps{
		Pipeline: render.New(failRunner{}, render.Config{}, log),
		Store:    store,
		Cache:    writer,
		Jobs:     jobs,
		Audit:    emitter,
		Log:      log,
	})

	backend := queue.NewInProcBackend(queue.InProcDeps{
		Store: jobs,
		Exec:  proc,
		Audit: emitter,
		Log:   log,
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Backend: backend,
		Cache:   writer,
		Store:   store,
		Audit:   emitter,
		Log:     log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &env{server: server, store: store, emitter: emitter}
}

func (e *env) addSource(location string, data []byte) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.sources[location] = data
}

func (e *env) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (e *env) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 640, 320))
	for y := 0; y < 320; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 90, B: 170, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func renderBody(doc string) map[string]any {
	return map[string]any{
		"document_id":     doc,
		"content_hash":    "hash-" + doc,
		"widths":          []int{96, 240},
		"mime_type":       "image/png",
		"owner_id":        "user-1",
		"source_location": "memory://sources/" + doc,
	}
}

func waitComplete(t *testing.T, e *env, jobID string) map[string]any {
	t.Helper()
	var body map[string]any
	require.Eventually(t, func() bool {
		resp, b := e.get(t, "/jobs/"+jobID)
		if resp.StatusCode != 200 {
			return false
		}
		body = b
		complete, _ := b["complete"].(bool)
		return complete
	}, 5*time.Second, 10*time.Millisecond)
	return body
}

func TestPostThumbnailsAccepted(t *testing.T) {
	e := newEnv(t)
	e.addSource("memory://sources/doc-1", smallPNG(t))

	resp, body := e.postJSON(t, "/thumbnails", renderBody("doc-1"))
	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])
	assert.NotEmpty(t, body["job_id"])
	assert.Greater(t, body["retry_after_ms"].(float64), 0.0)

	status := waitComplete(t, e, body["job_id"].(string))
	variants := status["variants"].([]any)
	require.Len(t, variants, 2)
	for _, v := range variants {
		vm := v.(map[string]any)
		assert.Equal(t, "success", vm["status"])
	}
}

func TestPostThumbnailsValidation(t *testing.T) {
	e := newEnv(t)

	body := renderBody("doc-1")
	delete(body, "widths")
	resp, out := e.postJSON(t, "/thumbnails", body)
	assert.Equal(t, 400, resp.StatusCode)
	errObj := out["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
}

func TestPostThumbnailsRejectsUnknownFields(t *testing.T) {
	e := newEnv(t)

	body := renderBody("doc-1")
	body["surprise"] = true
	resp, _ := e.postJSON(t, "/thumbnails", body)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetJobNotFound(t *testing.T) {
	e := newEnv(t)
	resp, out := e.get(t, "/jobs/job_missing")
	assert.Equal(t, 404, resp.StatusCode)
	errObj := out["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestGetJobWidthFilter(t *testing.T) {
	e := newEnv(t)
	e.addSource("memory://sources/doc-2", smallPNG(t))

	resp, body := e.postJSON(t, "/thumbnails", renderBody("doc-2"))
	require.Equal(t, 202, resp.StatusCode)
	jobID := body["job_id"].(string)
	waitComplete(t, e, jobID)

	resp, filtered := e.get(t, "/jobs/"+jobID+"?width=240")
	assert.Equal(t, 200, resp.StatusCode)
	variants := filtered["variants"].([]any)
	require.Len(t, variants, 1)
	assert.Equal(t, 240.0, variants[0].(map[string]any)["width"])

	resp, _ = e.get(t, "/jobs/"+jobID+"?width=999")
	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetThumbnailsProbeAndAudit(t *testing.T) {
	e := newEnv(t)
	e.addSource("memory://sources/doc-3", smallPNG(t))

	resp, body := e.postJSON(t, "/thumbnails", renderBody("doc-3"))
	require.Equal(t, 202, resp.StatusCode)
	waitComplete(t, e, body["job_id"].(string))

	resp, probe := e.get(t, "/thumbnails/doc-3/hash-doc-3?widths=96,240,480")
	assert.Equal(t, 200, resp.StatusCode)
	variants := probe["variants"].([]any)
	require.Len(t, variants, 3)

	byWidth := map[float64]map[string]any{}
	for _, v := range variants {
		vm := v.(map[string]any)
		byWidth[vm["width"].(float64)] = vm
	}
	assert.Equal(t, true, byWidth[96]["exists"])
	assert.Equal(t, "jpeg", byWidth[96]["format"])
	assert.Equal(t, true, byWidth[240]["exists"])
	assert.Equal(t, false, byWidth[480]["exists"])

	assert.Equal(t, 1, e.emitter.count(ports.EventAccessRequested))
}

func TestGetThumbnailsRequiresWidths(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.get(t, "/thumbnails/doc-1/hash-1")
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	resp, body := e.get(t, "/health")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "inproc", body["queue_mode"])
}

func TestResubmitCompletedJobSkips(t *testing.T) {
	e := newEnv(t)
	e.addSource("memory://sources/doc-4", smallPNG(t))

	resp, body := e.postJSON(t, "/thumbnails", renderBody("doc-4"))
	require.Equal(t, 202, resp.StatusCode)
	waitComplete(t, e, body["job_id"].(string))

	resp, again := e.postJSON(t, "/thumbnails", renderBody("doc-4"))
	require.Equal(t, 202, resp.StatusCode)
	newJobID := again["job_id"].(string)
	require.NotEqual(t, body["job_id"], newJobID)

	status := waitComplete(t, e, newJobID)
	for _, v := range status["variants"].([]any) {
		vm := v.(map[string]any)
		assert.Equal(t, "success", vm["status"])
		assert.Equal(t, true, vm["skipped"])
	}
}
