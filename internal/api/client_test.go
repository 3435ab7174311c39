// internal/api/client_test.go
package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/vectorwar/arena/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5000", "secret123")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected baseURL=http://localhost:5000, got %s", c.baseURL)
	}
	if c.apiKey != "secret123" {
		t.Errorf("expected apiKey=secret123, got %s", c.apiKey)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "")
	if err := c.Healthcheck(); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	c := New("http://localhost:59999", "") // unlikely to be listening
	if err := c.Healthcheck(); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "")
	if err := c.Healthcheck(); err == nil {
		t.Error("expected error for 500 response")
	}
}

func readFormFile(t *testing.T, r *http.Request, field string) string {
	t.Helper()
	file, _, err := r.FormFile(field)
	if err != nil {
		t.Errorf("failed to get file %s: %v", field, err)
		return ""
	}
	defer file.Close()
	data, _ := io.ReadAll(file)
	return string(data)
}

func TestUpload_Success(t *testing.T) {
	var received = map[string]string{}
	var receivedFileContent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sessions/add" {
			t.Errorf("expected path /api/v1/sessions/add, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, k := range []string{"secret", "filename", "label", "participants", "endFrame", "duration"} {
			received[k] = r.FormValue(k)
		}
		receivedFileContent = readFormFile(t, r, "file")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	testFile := filepath.Join(t.TempDir(), "duel_20240101_120000.json.gz")
	if err := os.WriteFile(testFile, []byte("test content"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	c := New(server.URL, "mysecret")
	meta := core.UploadMetadata{
		Label:        "duel",
		Participants: 2,
		EndFrame:     600,
		Duration:     10.5,
	}

	if err := c.Upload(testFile, meta); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	want := map[string]string{
		"secret":       "mysecret",
		"filename":     "duel_20240101_120000.json.gz",
		"label":        "duel",
		"participants": "2",
		"endFrame":     "600",
		"duration":     "10.500000",
	}
	for k, v := range want {
		if received[k] != v {
			t.Errorf("expected %s=%s, got %s", k, v, received[k])
		}
	}
	if receivedFileContent != "test content" {
		t.Errorf("expected file content 'test content', got '%s'", receivedFileContent)
	}
}

func TestUpload_FileNotFound(t *testing.T) {
	c := New("http://localhost:5000", "secret")
	if err := c.Upload("/nonexistent/file.json.gz", core.UploadMetadata{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestUpload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	testFile := filepath.Join(t.TempDir(), "test.json.gz")
	_ = os.WriteFile(testFile, []byte("content"), 0644)

	c := New(server.URL, "wrong-secret")
	if err := c.Upload(testFile, core.UploadMetadata{}); err == nil {
		t.Error("expected error for 403 response")
	}
}

func TestUploadDesync_AttachesDumps(t *testing.T) {
	var frame, expected, actual string
	var expectedDump, actualDump string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/desyncs/add" {
			t.Errorf("expected path /api/v1/desyncs/add, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		frame = r.FormValue("frame")
		expected = r.FormValue("expected")
		actual = r.FormValue("actual")
		expectedDump = readFormFile(t, r, "expectedDump")
		actualDump = readFormFile(t, r, "actualDump")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	exp := filepath.Join(dir, "a.log")
	act := filepath.Join(dir, "b.log")
	_ = os.WriteFile(exp, []byte("expected state"), 0644)
	_ = os.WriteFile(act, []byte("actual state"), 0644)

	c := New(server.URL, "k")
	err := c.UploadDesync("duel", core.DesyncEvent{Frame: 77, Expected: 0xabc, Actual: 0xdef, ExpectedDump: exp, ActualDump: act})
	if err != nil {
		t.Fatalf("UploadDesync failed: %v", err)
	}

	if frame != "77" {
		t.Errorf("expected frame=77, got %s", frame)
	}
	if expected != "00000abc" || actual != "00000def" {
		t.Errorf("unexpected checksums %s/%s", expected, actual)
	}
	if expectedDump != "expected state" || actualDump != "actual state" {
		t.Errorf("unexpected dumps %q/%q", expectedDump, actualDump)
	}
}

func TestUploadDesync_WithoutDumps(t *testing.T) {
	var hasFiles bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err == nil {
			hasFiles = len(r.MultipartForm.File) > 0
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "k")
	if err := c.UploadDesync("duel", core.DesyncEvent{Frame: 1}); err != nil {
		t.Fatalf("UploadDesync failed: %v", err)
	}
	if hasFiles {
		t.Error("expected no file parts")
	}
}
