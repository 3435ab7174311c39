// internal/api/client.go
package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vectorwar/arena/internal/util"
	"github.com/vectorwar/arena/pkg/core"
)

// Client handles communication with the session report server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the report server is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

type formFile struct {
	field string
	path  string
}

// Upload sends an exported session file to the report server.
func (c *Client) Upload(filePath string, meta core.UploadMetadata) error {
	fields := map[string]string{
		"filename":     filepath.Base(filePath),
		"label":        meta.Label,
		"participants": strconv.Itoa(meta.Participants),
		"endFrame":     strconv.Itoa(int(meta.EndFrame)),
		"duration":     fmt.Sprintf("%f", meta.Duration),
	}
	return c.post("/api/v1/sessions/add", fields, []formFile{{"file", filePath}})
}

// UploadDesync sends a desync report with both state dumps attached.
// Dumps whose path is empty are skipped.
func (c *Client) UploadDesync(label string, e core.DesyncEvent) error {
	fields := map[string]string{
		"label":    label,
		"frame":    strconv.Itoa(int(e.Frame)),
		"expected": util.FormatChecksum(e.Expected),
		"actual":   util.FormatChecksum(e.Actual),
	}
	var files []formFile
	if e.ExpectedDump != "" {
		files = append(files, formFile{"expectedDump", e.ExpectedDump})
	}
	if e.ActualDump != "" {
		files = append(files, formFile{"actualDump", e.ActualDump})
	}
	return c.post("/api/v1/desyncs/add", fields, files)
}

// post streams a multipart form with the secret, fields and files.
func (c *Client) post(path string, fields map[string]string, files []formFile) error {
	opened := make([]*os.File, 0, len(files))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, ff := range files {
		f, err := os.Open(ff.path)
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		opened = append(opened, f)
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	// Write form fields and files in goroutine
	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer writer.Close()

		_ = writer.WriteField("secret", c.apiKey)
		for k, v := range fields {
			_ = writer.WriteField(k, v)
		}

		for i, ff := range files {
			part, err := writer.CreateFormFile(ff.field, filepath.Base(ff.path))
			if err != nil {
				errCh <- fmt.Errorf("failed to create form file: %w", err)
				return
			}
			if _, err := io.Copy(part, opened[i]); err != nil {
				errCh <- fmt.Errorf("failed to copy file: %w", err)
				return
			}
		}
		errCh <- nil
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	// Check goroutine error
	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}
