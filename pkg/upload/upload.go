// Package upload sends recorded videos to the pose service for offline
// annotation and saves the processed result.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/teslashibe/go-pitchside/internal/httpc"
)

// FieldName is the multipart field the service reads the video from.
const FieldName = "file"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 * 1024

// Result describes a processed video.
type Result struct {
	Name        string // File name suggested by the service
	ContentType string
	Bytes       int64
}

// Client uploads videos to the service.
type Client struct {
	URL    string
	HTTP   *http.Client
	Logger *slog.Logger

	// Retries is how many more times UploadFile tries after a retryable
	// service error.
	Retries int
}

// New creates a client for the upload endpoint url.
func New(url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		URL:    url,
		HTTP:   httpc.NewClient(httpc.UploadTimeout),
		Logger: logger.With("component", "upload"),
	}
}

// Upload posts the video read from r under name and copies the processed
// video to w. The request body is streamed, so large files are not held in
// memory.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader, w io.Writer) (*Result, error) {
	res, body, err := c.Open(ctx, name, r)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return nil, fmt.Errorf("upload: read processed video: %w", err)
	}
	res.Bytes = n

	c.Logger.Info("video processed", "name", res.Name, "bytes", n)
	return res, nil
}

// Open posts the video read from r under name and returns the processed
// video as a stream once the service answers. The caller must close body.
// Result.Bytes is the announced length, or -1 when unknown.
func (c *Client) Open(ctx context.Context, name string, r io.Reader) (*Result, io.ReadCloser, error) {
	if c.URL == "" {
		return nil, nil, ErrNoURL
	}
	if name == "" {
		return nil, nil, ErrNoName
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(FieldName, filepath.Base(name))
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, pr)
	if err != nil {
		pr.Close()
		return nil, nil, fmt.Errorf("upload: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.Logger.Info("uploading video", "name", name, "url", c.URL)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		pr.Close()
		return nil, nil, fmt.Errorf("upload: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	res := &Result{
		Name:        processedName(resp.Header.Get("Content-Disposition"), name),
		ContentType: resp.Header.Get("Content-Type"),
		Bytes:       resp.ContentLength,
	}
	return res, resp.Body, nil
}

// UploadFile uploads the file at in and writes the processed video into
// outDir, returning the path written. Server-side failures are retried up
// to c.Retries times.
func (c *Client) UploadFile(ctx context.Context, in, outDir string) (string, *Result, error) {
	for attempt := 0; ; attempt++ {
		out, res, err := c.uploadFile(ctx, in, outDir)
		var apiErr *APIError
		if err == nil || attempt >= c.Retries || ctx.Err() != nil ||
			!errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return out, res, err
		}
		c.Logger.Warn("upload failed, retrying", "file", in, "attempt", attempt+1, "error", err)
	}
}

func (c *Client) uploadFile(ctx context.Context, in, outDir string) (string, *Result, error) {
	f, err := os.Open(in)
	if err != nil {
		return "", nil, fmt.Errorf("upload: %w", err)
	}
	defer f.Close()

	tmp, err := os.CreateTemp(outDir, ".upload-*")
	if err != nil {
		return "", nil, fmt.Errorf("upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	res, err := c.Upload(ctx, filepath.Base(in), f, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("upload: %w", cerr)
	}
	if err != nil {
		return "", nil, err
	}

	out := filepath.Join(outDir, filepath.Base(res.Name))
	if err := os.Rename(tmp.Name(), out); err != nil {
		return "", nil, fmt.Errorf("upload: %w", err)
	}
	return out, res, nil
}

// ProcessedName is the name the service gives an annotated video.
func ProcessedName(name string) string {
	return "processed_" + filepath.Base(name)
}

func processedName(disposition, name string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if fn := params["filename"]; fn != "" {
				return filepath.Base(fn)
			}
		}
	}
	return ProcessedName(name)
}
