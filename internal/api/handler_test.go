package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/healthlens/healthlens/internal/auth"
	"github.com/healthlens/healthlens/internal/catalog/sqlite"
	"github.com/healthlens/healthlens/internal/config"
	"github.com/healthlens/healthlens/internal/nl2sql"
	"github.com/healthlens/healthlens/internal/query/duckdb"
	"github.com/healthlens/healthlens/internal/schema"
	"github.com/healthlens/healthlens/internal/storage"
	"github.com/healthlens/healthlens/internal/warehouse"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

type fakeTranslator struct {
	sql string
	err error
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	if len(req.Tables) == 0 {
		return nl2sql.Result{}, nl2sql.ErrNoDataLoaded
	}
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return nl2sql.Result{SQL: f.sql, Provider: "fake", Model: "fake-1"}, nil
}

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[string][]byte)}
}

func (s *memObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memObjectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memObjectStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memObjectStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type testEnv struct {
	handler    http.Handler
	translator *fakeTranslator
	archive    *memObjectStore
}

func newTestEnv(t *testing.T, env map[string]string) *testEnv {
	t.Helper()

	cfg, err := config.Load("healthlens-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := sqlite.NewRepository(db)

	store := warehouse.NewStore("")
	t.Cleanup(func() { _ = store.Close() })

	translator := &fakeTranslator{}
	deps := Dependencies{
		Catalog:      repo,
		Warehouse:    store,
		Introspector: schema.NewIntrospector(repo, store, cfg.Upload.SampleRows),
		QueryEngine:  duckdb.NewEngine(store),
		Translator:   translator,
	}
	var archive *memObjectStore
	if cfg.Archive.Enabled {
		archive = newMemObjectStore()
		deps.Archive = archive
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			t.Fatalf("validator setup failed: %v", err)
		}
		deps.AuthMiddleware = auth.Middleware(nil, validator)
	}

	return &testEnv{handler: NewHandler(cfg, deps), translator: translator, archive: archive}
}

func (e *testEnv) do(t *testing.T, method, target, sessionID string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/v1/sessions", "", nil, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	sessionID, _ := body["session_id"].(string)
	if sessionID == "" {
		t.Fatal("session_id missing from response")
	}
	return sessionID
}

func (e *testEnv) uploadCSV(t *testing.T, sessionID, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return e.do(t, http.MethodPost, "/v1/datasets", sessionID, &buf, writer.FormDataContentType())
}

const patientsCSV = "patient_id,age,smoker\np1,34,true\np2,51,false\np3,45,true\n"

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, map[string]string{})
	rr := env.do(t, http.MethodGet, "/v1/health", "", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg, err := config.Load("healthlens-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"HEALTHLENS_AUTH_REQUIRED":    "true",
		"HEALTHLENS_AUTH_STATIC_KEYS": "k1:alice:reader|uploader|admin",
	})

	unauth := env.do(t, http.MethodPost, "/v1/sessions", "", nil, "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauth.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("auth status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["owner"] != "alice" {
		t.Fatalf("owner = %v", body["owner"])
	}
}

func TestSessionHeaderIsRequiredForDatasets(t *testing.T) {
	env := newTestEnv(t, map[string]string{})
	rr := env.do(t, http.MethodGet, "/v1/datasets", "", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/v1/datasets", "no-such-session", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	calls := 0
	failing := func(context.Context) error {
		calls++
		return fmt.Errorf("check %d failed", calls)
	}
	never := func(context.Context) error {
		t.Fatal("later check should not run")
		return nil
	}

	combined := CombineReadinessChecks(nil, failing, never)
	if err := combined(context.Background()); err == nil {
		t.Fatal("expected combined check to fail")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
