package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"drivegate/internal/blob"
	"drivegate/internal/registry"
	"drivegate/internal/share"
)

// makeToken builds an unsigned JWT-shaped token for the given username.
func makeToken(t *testing.T, username string) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]string{"username": username})
	require.NoError(t, err, "marshal claims")
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

// fakeBlob is an in-memory blob.Store for exercising the coordinator without
// a real backend.
type fakeBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	delErr  error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}}
}

func (f *fakeBlob) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeBlob) PresignGet(ctx context.Context, key string, filename string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return "", fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	return "https://blobs.test/" + key + "?filename=" + filename, nil
}

func (f *fakeBlob) Delete(ctx context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBlob) Ping(ctx context.Context) error { return nil }

func (f *fakeBlob) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// fakeRegistry is a stateful in-memory stand-in for the remote metadata
// service, served over httptest.
type fakeRegistry struct {
	mu          sync.Mutex
	nextID      int
	records     map[string]registry.Record
	failCreate  bool
	failDelete  bool
	createCalls int

	srv *httptest.Server
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()

	f := &fakeRegistry{records: map[string]registry.Record{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /filemanagement/upload", f.handleCreate)
	mux.HandleFunc("GET /filemanagement/list", f.handleList)
	mux.HandleFunc("GET /filemanagement/files/{id}", f.handleGet)
	mux.HandleFunc("DELETE /filemanagement/files/{id}", f.handleDelete)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRegistry) handleCreate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if f.failCreate {
		http.Error(w, "registry says no", http.StatusBadGateway)
		return
	}

	var rec registry.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "bad record", http.StatusBadRequest)
		return
	}

	f.nextID++
	rec.ID = "rec-" + strconv.Itoa(f.nextID)
	f.records[rec.ID] = rec

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": rec.ID})
}

func (f *fakeRegistry) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := make([]registry.Record, 0, len(f.records))
	for _, rec := range f.records {
		records = append(records, rec)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": records})
}

func (f *fakeRegistry) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (f *fakeRegistry) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failDelete {
		http.Error(w, "registry says no", http.StatusBadGateway)
		return
	}

	id := r.PathValue("id")
	if _, ok := f.records[id]; !ok {
		http.NotFound(w, r)
		return
	}
	delete(f.records, id)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// add seeds a record directly, bypassing the upload path.
func (f *fakeRegistry) add(rec registry.Record) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	if rec.ID == "" {
		rec.ID = "rec-" + strconv.Itoa(f.nextID)
	}
	f.records[rec.ID] = rec
	return rec.ID
}

func (f *fakeRegistry) setFailCreate(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate = fail
}

func (f *fakeRegistry) setFailDelete(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete = fail
}

func (f *fakeRegistry) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

// newTestServer wires a Server to an in-memory blob store and a fake
// registry.
func newTestServer(t *testing.T, store blob.Store, reg *fakeRegistry) *Server {
	t.Helper()

	grants, err := share.Open(filepath.Join(t.TempDir(), "grants.db"))
	require.NoError(t, err, "open grant store")
	t.Cleanup(func() { _ = grants.Close() })

	srv, err := NewServer(Config{
		BaseURL:  "http://gateway.test",
		Blob:     store,
		Registry: registry.NewClient(reg.srv.URL),
		Grants:   grants,
	})
	require.NoError(t, err, "NewServer error")
	return srv
}
