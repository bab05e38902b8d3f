package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-critique/analyzers"
	"github.com/RyanBlaney/sonido-critique/compare"
	"github.com/RyanBlaney/sonido-critique/config"
	"github.com/RyanBlaney/sonido-critique/features"
	"github.com/RyanBlaney/sonido-critique/jobs"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/pipeline"
	"github.com/RyanBlaney/sonido-critique/reference"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFunc func(ctx context.Context, req jobs.Request) (*jobs.Result, error)

func (f processorFunc) Process(ctx context.Context, req jobs.Request) (*jobs.Result, error) {
	return f(ctx, req)
}

// seen reports every request the processor handles, with whether its file existed
type seen struct {
	req    jobs.Request
	exists bool
}

func recordingProcessor(ch chan<- seen) jobs.Processor {
	return processorFunc(func(_ context.Context, req jobs.Request) (*jobs.Result, error) {
		_, err := os.Stat(req.TrackPath)
		ch <- seen{req: req, exists: err == nil}
		return &jobs.Result{Analysis: &pipeline.Analysis{Record: features.DefaultRecord("upload")}}, nil
	})
}

func newTestServer(t *testing.T, processor jobs.Processor, maxFileSize int64) (*Server, *jobs.Queue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	queue := jobs.NewQueue(processor, jobs.Options{Workers: 1, Size: 4})
	queue.Start()
	t.Cleanup(func() { queue.Stop(context.Background()) })

	s := New(Options{
		Config: config.ServerConfig{
			UploadDir:      t.TempDir(),
			AllowedOrigins: []string{"*"},
		},
		MaxFileSize: maxFileSize,
		Queue:       queue,
		Comparer:    compare.NewComparator(reference.NewResolver(reference.ResolverOptions{}), nil),
		Registry:    analyzers.NewRegistry(analyzers.Capabilities{}, analyzers.Options{}),
	})
	return s, queue
}

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string][]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("track", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for name, values := range fields {
		for _, v := range values {
			require.NoError(t, w.WriteField(name, v))
		}
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, recordingProcessor(make(chan seen, 1)), 0)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string              `json:"status"`
		Service      string              `json:"service"`
		Capabilities map[string]any      `json:"capabilities"`
		Tiers        map[string][]string `json:"tiers"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, config.AppName, body.Service)
	assert.Equal(t, false, body.Capabilities["ffmpeg"])
	require.Len(t, body.Tiers[string(analyzers.CategoryRhythm)], 2)
	assert.Contains(t, body.Tiers[string(analyzers.CategoryRhythm)][1], analyzers.OnsetTempoName)
}

func TestAnalyzeAcceptsUpload(t *testing.T) {
	handled := make(chan seen, 1)
	s, queue := newTestServer(t, recordingProcessor(handled), 0)

	rec := serve(s, uploadRequest(t, "Night Drive.wav", []byte("RIFF fake"), map[string][]string{
		"artists":  {"Tame Impala, Daft Punk", "Bon Iver"},
		"feedback": {"true"},
	}))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body struct {
		JobID string `json:"job_id"`
	}
	decode(t, rec, &body)
	require.NotEmpty(t, body.JobID)

	var got seen
	select {
	case got = <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}
	assert.True(t, got.exists)
	assert.True(t, strings.HasSuffix(got.req.TrackPath, "Night Drive.wav"))
	assert.Equal(t, []string{"Tame Impala", "Daft Punk", "Bon Iver"}, got.req.Artists)
	assert.True(t, got.req.WantFeedback)

	assert.Eventually(t, func() bool {
		job, err := queue.Get(body.JobID)
		return err == nil && job.Status == jobs.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// the upload is removed once the job finishes
	assert.Eventually(t, func() bool {
		_, err := os.Stat(got.req.TrackPath)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+body.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var jobBody struct {
		Job jobs.Job `json:"job"`
	}
	decode(t, rec, &jobBody)
	assert.Equal(t, jobs.StatusCompleted, jobBody.Job.Status)
}

func TestAnalyzeRejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		want     int
	}{
		{"oversized file", "big.mp3", bytes.Repeat([]byte{0xff}, 4096), http.StatusRequestEntityTooLarge},
		{"unsupported extension", "notes.txt", []byte("hello"), http.StatusUnsupportedMediaType},
		{"missing track field", "", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handled := make(chan seen, 1)
			s, queue := newTestServer(t, recordingProcessor(handled), 1024)

			rec := serve(s, uploadRequest(t, tt.filename, tt.content, nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, queue.List())
		})
	}
}

func TestJobNotFound(t *testing.T) {
	s, _ := newTestServer(t, recordingProcessor(make(chan seen, 1)), 0)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamJob(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	s, queue := newTestServer(t, processorFunc(func(ctx context.Context, _ jobs.Request) (*jobs.Result, error) {
		started <- struct{}{}
		<-release
		return &jobs.Result{}, nil
	}), 0)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	id, err := queue.Submit(jobs.Request{TrackPath: "x.wav"}, nil)
	require.NoError(t, err)
	<-started

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	close(release)

	var statuses []jobs.Status
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var job jobs.Job
		if err := conn.ReadJSON(&job); err != nil {
			break
		}
		assert.Equal(t, id, job.ID)
		statuses = append(statuses, job.Status)
	}

	require.NotEmpty(t, statuses)
	assert.Equal(t, jobs.StatusProcessing, statuses[0])
	assert.Equal(t, jobs.StatusCompleted, statuses[len(statuses)-1])
}

func TestStreamUnknownJob(t *testing.T) {
	s, _ := newTestServer(t, recordingProcessor(make(chan seen, 1)), 0)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompare(t *testing.T) {
	s, _ := newTestServer(t, recordingProcessor(make(chan seen, 1)), 0)

	body := `{
		"features": {
			"tempo": {"value": 120},
			"loudness": {"value": -10.2},
			"dynamic_range": {"value": 7.5},
			"spectral_balance": {"value": 0.68}
		},
		"artists": ["Tame Impala"]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result compare.Result
	decode(t, rec, &result)
	assert.Equal(t, "Tame Impala", result.ClosestMatch.Artist)
	assert.InDelta(t, 100, result.SimilarityScore, 1e-9)
	assert.Equal(t, "matches", result.Tempo.Direction)
}

func TestCompareAcceptsSummary(t *testing.T) {
	s, _ := newTestServer(t, recordingProcessor(make(chan seen, 1)), 0)

	body := `{
		"summary": {
			"title": "Night Drive",
			"tempo": {"value": 120, "description": "Moderate tempo"},
			"loudness": {"value": -10.2},
			"dynamics": {"value": 7.5, "improvementNeeded": false},
			"mixBalance": {"value": 0.68},
			"mood": "Energetic"
		},
		"artists": ["Tame Impala"]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result compare.Result
	decode(t, rec, &result)
	assert.InDelta(t, 7.5, result.Dynamics.Value, 1e-9)
	assert.InDelta(t, 0.68, result.Balance.Value, 1e-9)
	assert.InDelta(t, 100, result.SimilarityScore, 1e-9)
}

func TestCompareRequiresArtists(t *testing.T) {
	s, _ := newTestServer(t, recordingProcessor(make(chan seen, 1)), 0)

	for _, body := range []string{`{"features": {}}`, `{"artists": [" "]}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, serve(s, req).Code, body)
	}
}

func TestSplitArtists(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, splitArtists([]string{" A ,B", "", "C,"}))
	assert.Nil(t, splitArtists(nil))
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, originAllowed(nil, "http://evil.example"))
	assert.True(t, originAllowed([]string{"http://localhost:3000"}, ""))
	assert.True(t, originAllowed([]string{"http://localhost:3000"}, "http://localhost:3000"))
	assert.False(t, originAllowed([]string{"http://localhost:3000"}, "http://evil.example"))
	assert.True(t, originAllowed([]string{"*"}, "http://evil.example"))
}

func TestRequestLoggerTagsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(&logging.NoOpLogger{}))

	var fields logging.Fields
	r.GET("/ping", func(c *gin.Context) {
		fields, _ = logging.FieldsFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	id := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)
	assert.Equal(t, id, fields["request_id"])
}
