package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	queuemem "github.com/JakeFAU/headline-scraper/internal/queue/memory"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

func newTestServer(cfg Config) (*Server, *queuemem.Queue) {
	q := queuemem.NewQueue(nil)
	return NewServer(q, nil, cfg, zap.NewNop()), q
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeAccepted(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var out jobAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Positive(t, out.JobID)
	return out.JobID
}

func TestServer_SubmitArticle(t *testing.T) {
	t.Parallel()

	s, q := newTestServer(Config{})
	rec := do(t, s, http.MethodPost, "/v1/jobs/article", `{"url":"https://example.com/story","source_id":4}`)
	id := decodeAccepted(t, rec)

	job, err := q.Status(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, scrape.JobTypeArticle, job.Type)
	require.Equal(t, scrape.JobStatusQueued, job.Status)
	var p scrape.ArticlePayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	require.Equal(t, "https://example.com/story", p.URL)
	require.NotNil(t, p.SourceID)
	require.Equal(t, int64(4), *p.SourceID)
}

func TestServer_SubmitArticle_Rejects(t *testing.T) {
	t.Parallel()

	s, q := newTestServer(Config{})
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "invalid json", body: "{invalid", want: "invalid JSON"},
		{name: "missing url", body: `{"url":" "}`, want: "url required"},
		{name: "bad scheme", body: `{"url":"ftp://example.com/x"}`, want: "invalid url"},
	}
	for _, tt := range tests {
		rec := do(t, s, http.MethodPost, "/v1/jobs/article", tt.body)
		require.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
		require.Contains(t, rec.Body.String(), tt.want, tt.name)
	}
	require.Empty(t, q.Jobs())
}

func TestServer_SubmitSource(t *testing.T) {
	t.Parallel()

	s, q := newTestServer(Config{})
	id := decodeAccepted(t, do(t, s, http.MethodPost, "/v1/jobs/source", `{"source_id":9,"limit":5}`))

	job, err := q.Status(context.Background(), id)
	require.NoError(t, err)
	var p scrape.SourcePayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	require.Equal(t, scrape.SourcePayload{SourceID: 9, Limit: 5}, p)

	rec := do(t, s, http.MethodPost, "/v1/jobs/source", `{"limit":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodPost, "/v1/jobs/source", `{"source_id":9,"limit":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitBatch(t *testing.T) {
	t.Parallel()

	s, q := newTestServer(Config{})
	id := decodeAccepted(t, do(t, s, http.MethodPost, "/v1/jobs/batch", `{"batch_size":10,"query":"herald","dry_run":true}`))
	job, err := q.Status(context.Background(), id)
	require.NoError(t, err)
	var p scrape.BatchPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	require.Equal(t, scrape.BatchPayload{BatchSize: 10, Query: "herald", DryRun: true}, p)

	decodeAccepted(t, do(t, s, http.MethodPost, "/v1/jobs/batch", ""))
	require.Len(t, q.Jobs(), 2)
}

func TestServer_GetJob(t *testing.T) {
	t.Parallel()

	s, q := newTestServer(Config{})
	id, err := q.Enqueue(context.Background(), scrape.JobTypeSource, json.RawMessage(`{"source_id":1}`))
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, fmt.Sprintf("/v1/jobs/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job scrape.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, id, job.ID)
	require.Equal(t, scrape.JobStatusQueued, job.Status)

	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/jobs/999", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/jobs/abc", "").Code)
}

func TestServer_ResubmitJob(t *testing.T) {
	t.Parallel()

	s, q := newTestServer(Config{})
	ctx := context.Background()
	id, err := q.Enqueue(ctx, scrape.JobTypeArticle, json.RawMessage(`{"url":"https://example.com/a"}`))
	require.NoError(t, err)

	// Queued jobs cannot be resubmitted.
	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, fmt.Sprintf("/v1/jobs/%d/resubmit", id), "").Code)

	_, err = q.Claim(ctx, "w")
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, "extract: extraction failed"))

	newID := decodeAccepted(t, do(t, s, http.MethodPost, fmt.Sprintf("/v1/jobs/%d/resubmit", id), ""))
	require.NotEqual(t, id, newID)
	job, err := q.Status(ctx, newID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusQueued, job.Status)
	require.JSONEq(t, `{"url":"https://example.com/a"}`, string(job.Payload))
}

type failingQueue struct {
	scrape.JobQueue
}

func (failingQueue) Enqueue(context.Context, scrape.JobType, json.RawMessage) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingQueue) Status(context.Context, int64) (scrape.Job, error) {
	return scrape.Job{}, errors.New("connection refused")
}

func TestServer_QueueErrors(t *testing.T) {
	t.Parallel()

	s := NewServer(failingQueue{}, nil, Config{}, zap.NewNop())
	rec := do(t, s, http.MethodPost, "/v1/jobs/batch", `{}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "failed to enqueue job")

	rec = do(t, s, http.MethodGet, "/v1/jobs/1", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_APIKeyGuardsJobRoutes(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(Config{APIKey: "secret"})

	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/v1/jobs/batch", `{}`).Code)
	require.Equal(t, http.StatusUnauthorized,
		do(t, s, http.MethodPost, "/v1/jobs/batch", `{}`, "X-API-Key", "wrong").Code)
	decodeAccepted(t, do(t, s, http.MethodPost, "/v1/jobs/batch", `{}`, "X-API-Key", "secret"))
}

func TestServer_Readiness(t *testing.T) {
	t.Parallel()

	q := queuemem.NewQueue(nil)
	healthy := NewServer(q, func(context.Context) error { return nil }, Config{}, zap.NewNop())
	require.Equal(t, http.StatusOK, do(t, healthy, http.MethodGet, "/readyz", "").Code)

	down := NewServer(q, func(context.Context) error { return errors.New("db down") }, Config{}, zap.NewNop())
	rec := do(t, down, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_MetricsRoute(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(Config{ExposeMetrics: true})
	do(t, s, http.MethodGet, "/healthz", "")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")

	hidden, _ := newTestServer(Config{})
	require.Equal(t, http.StatusNotFound, do(t, hidden, http.MethodGet, "/metrics", "").Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(Config{})
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/healthz", "", "X-Request-ID", "req-1")
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(Config{})
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
