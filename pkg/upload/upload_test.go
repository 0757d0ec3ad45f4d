package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-pitchside/internal/log"
)

// echoServer returns the uploaded file reversed as processed_<name>.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		f, hdr, err := r.FormFile(FieldName)
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", `attachment; filename="processed_`+hdr.Filename+`"`)
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUpload(t *testing.T) {
	srv := echoServer(t)
	c := New(srv.URL, log.Discard())

	var out bytes.Buffer
	res, err := c.Upload(context.Background(), "match.mp4", strings.NewReader("abc"), &out)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if out.String() != "cba" {
		t.Errorf("body = %q, want %q", out.String(), "cba")
	}
	if res.Name != "processed_match.mp4" {
		t.Errorf("Name = %q", res.Name)
	}
	if res.ContentType != "video/mp4" || res.Bytes != 3 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestUploadAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, log.Discard())
	_, err := c.Upload(context.Background(), "match.mp4", strings.NewReader("abc"), io.Discard)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if apiErr.Message != "model not loaded" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if !apiErr.IsRetryable() {
		t.Error("503 should be retryable")
	}
}

func TestOpenStreamsProcessedVideo(t *testing.T) {
	srv := echoServer(t)
	c := New(srv.URL, log.Discard())

	res, body, err := c.Open(context.Background(), "clip.mp4", strings.NewReader("xyz"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer body.Close()

	if res.Name != "processed_clip.mp4" || res.ContentType != "video/mp4" || res.Bytes != 3 {
		t.Errorf("result = %+v", res)
	}
	data, _ := io.ReadAll(body)
	if string(data) != "zyx" {
		t.Errorf("body = %q", data)
	}
}

func TestUploadValidation(t *testing.T) {
	if _, err := (&Client{}).Upload(context.Background(), "a.mp4", nil, nil); !errors.Is(err, ErrNoURL) {
		t.Errorf("got %v, want ErrNoURL", err)
	}
	c := New("http://localhost", log.Discard())
	if _, err := c.Upload(context.Background(), "", nil, nil); !errors.Is(err, ErrNoName) {
		t.Errorf("got %v, want ErrNoName", err)
	}
}

func TestUploadFile(t *testing.T) {
	srv := echoServer(t)
	c := New(srv.URL, log.Discard())

	dir := t.TempDir()
	in := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(in, []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, res, err := c.UploadFile(context.Background(), in, dir)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if filepath.Base(out) != "processed_clip.mp4" {
		t.Errorf("out = %s", out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "54321" || res.Bytes != 5 {
		t.Errorf("processed = %q, bytes = %d", data, res.Bytes)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

// flakyServer fails the first n requests with status, then echoes.
func flakyServer(t *testing.T, n, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	echo := echoServer(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if int(calls.Add(1)) <= n {
			io.Copy(io.Discard, r.Body)
			http.Error(w, "busy", status)
			return
		}
		echo.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestUploadFileRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		status    int
		retries   int
		wantErr   bool
		wantCalls int32
	}{
		{"retryable then ok", 1, http.StatusServiceUnavailable, 1, false, 2},
		{"retries exhausted", 2, http.StatusBadGateway, 1, true, 2},
		{"client error not retried", 1, http.StatusBadRequest, 1, true, 1},
		{"no retries", 1, http.StatusServiceUnavailable, 0, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := flakyServer(t, tt.failures, tt.status)
			c := New(srv.URL, log.Discard())
			c.Retries = tt.retries

			dir := t.TempDir()
			in := filepath.Join(dir, "clip.mp4")
			if err := os.WriteFile(in, []byte("abc"), 0o644); err != nil {
				t.Fatal(err)
			}

			out, _, err := c.UploadFile(context.Background(), in, dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UploadFile error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("requests = %d, want %d", calls.Load(), tt.wantCalls)
			}
			if err == nil {
				data, _ := os.ReadFile(out)
				if string(data) != "cba" {
					t.Errorf("processed = %q", data)
				}
			}
		})
	}
}

func TestProcessedName(t *testing.T) {
	tests := []struct {
		disposition, name, want string
	}{
		{"", "a.mp4", "processed_a.mp4"},
		{`attachment; filename="out.mp4"`, "a.mp4", "out.mp4"},
		{`attachment; filename="../../etc/passwd"`, "a.mp4", "passwd"},
		{"garbage;;", "dir/a.mp4", "processed_a.mp4"},
	}
	for _, tt := range tests {
		if got := processedName(tt.disposition, tt.name); got != tt.want {
			t.Errorf("processedName(%q, %q) = %q, want %q", tt.disposition, tt.name, got, tt.want)
		}
	}
}
