// Package healthlensctl implements the command line client for the
// HealthLens API.
package healthlensctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("healthlensctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "HealthLens API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	sessionID := fs.String("session", defaults.SessionID, "Session ID (from session-new)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	runner := &runner{
		client:    client,
		baseURL:   strings.TrimRight(*baseURL, "/"),
		apiKey:    strings.TrimSpace(*apiKey),
		sessionID: strings.TrimSpace(*sessionID),
		stdout:    stdout,
		stderr:    stderr,
	}

	command := strings.TrimSpace(fs.Arg(0))
	switch command {
	case "health":
		return runner.request(ctx, http.MethodGet, "/v1/health", nil, "")
	case "ready":
		return runner.request(ctx, http.MethodGet, "/v1/ready", nil, "")
	case "session-new":
		return runner.request(ctx, http.MethodPost, "/v1/sessions", nil, "")
	case "upload":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "usage: healthlensctl upload <file>")
			return 2
		}
		return runner.upload(ctx, fs.Arg(1))
	case "ask":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "usage: healthlensctl ask <question>")
			return 2
		}
		return runner.postJSON(ctx, "/v1/chat", map[string]any{"question": strings.Join(fs.Args()[1:], " ")})
	case "sql":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "usage: healthlensctl sql <statement>")
			return 2
		}
		return runner.postJSON(ctx, "/v1/query", map[string]any{"sql": strings.Join(fs.Args()[1:], " ")})
	case "tables":
		return runner.request(ctx, http.MethodGet, "/v1/schema", nil, "")
	case "datasets":
		return runner.request(ctx, http.MethodGet, "/v1/datasets", nil, "")
	case "history":
		return runner.request(ctx, http.MethodGet, "/v1/history", nil, "")
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

type runner struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	sessionID string
	stdout    io.Writer
	stderr    io.Writer
}

func (r *runner) postJSON(ctx context.Context, path string, payload any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "encode request: %v\n", err)
		return 1
	}
	return r.request(ctx, http.MethodPost, path, bytes.NewReader(raw), "application/json")
}

func (r *runner) upload(ctx context.Context, filename string) int {
	file, err := os.Open(filename)
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "open file: %v\n", err)
		return 1
	}
	defer func() { _ = file.Close() }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err == nil {
		_, err = io.Copy(part, file)
	}
	if err == nil {
		err = writer.Close()
	}
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "build upload: %v\n", err)
		return 1
	}
	return r.request(ctx, http.MethodPost, "/v1/datasets", &buf, writer.FormDataContentType())
}

func (r *runner) request(ctx context.Context, method, path string, body io.Reader, contentType string) int {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "build request: %v\n", err)
		return 1
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}
	if r.sessionID != "" {
		req.Header.Set("X-Session-ID", r.sessionID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "request failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "read response: %v\n", err)
		return 1
	}

	if resp.StatusCode >= 400 {
		_, _ = fmt.Fprintf(r.stderr, "http %d: %s\n", resp.StatusCode, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(r.stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(r.stdout, string(responseBody))
	}
	return 0
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: healthlensctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health         GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready          GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  session-new    POST /v1/sessions")
	_, _ = fmt.Fprintln(w, "  upload <file>  POST /v1/datasets")
	_, _ = fmt.Fprintln(w, "  ask <question> POST /v1/chat")
	_, _ = fmt.Fprintln(w, "  sql <stmt>     POST /v1/query")
	_, _ = fmt.Fprintln(w, "  tables         GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  datasets       GET /v1/datasets")
	_, _ = fmt.Fprintln(w, "  history        GET /v1/history")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
