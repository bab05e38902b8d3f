package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-critique/config"
	"github.com/RyanBlaney/sonido-critique/features"
	"github.com/RyanBlaney/sonido-critique/jobs"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/transcode"
	"github.com/gin-gonic/gin"
)

// multipart framing allowance on top of the file size cap
const formOverhead = 1 << 20

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"service":   config.AppName,
		"timestamp": time.Now().Unix(),
	}
	if s.registry != nil {
		body["capabilities"] = s.registry.Capabilities()
		body["tiers"] = s.registry.TierNames()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) analyze(c *gin.Context) {
	logger := s.logger.WithContext(c.Request.Context()).WithFields(logging.Fields{"function": "analyze"})

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxFileSize+formOverhead)
	header, err := c.FormFile("track")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'track' is required"})
		return
	}

	if header.Size > s.maxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":     "file exceeds the upload limit",
			"max_bytes": s.maxFileSize,
		})
		return
	}

	name := filepath.Base(header.Filename)
	if !transcode.IsSupportedExtension(filepath.Ext(name)) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":     "unsupported audio format",
			"supported": transcode.SupportedExtensions(),
		})
		return
	}

	wantFeedback := false
	if v := c.PostForm("feedback"); v != "" {
		wantFeedback, _ = strconv.ParseBool(v)
	}

	// each upload gets its own directory so the original file name survives as the title
	dir, err := os.MkdirTemp(s.config.UploadDir, "upload-*")
	if err != nil {
		logger.Error(err, "Failed to create upload directory")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	path := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(header, path); err != nil {
		os.RemoveAll(dir)
		logger.Error(err, "Failed to save upload", logging.Fields{"file": name})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	req := jobs.Request{
		TrackPath:    path,
		Artists:      splitArtists(c.PostFormArray("artists")),
		WantFeedback: wantFeedback,
	}
	id, err := s.queue.Submit(req, func(jobs.Job) {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Failed to remove upload", logging.Fields{"dir": dir, "error": err.Error()})
		}
	})
	if err != nil {
		os.RemoveAll(dir)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": id})
}

// splitArtists accepts repeated fields and comma separated lists
func splitArtists(values []string) []string {
	var out []string
	for _, v := range values {
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
	}
	return out
}

func (s *Server) listJobs(c *gin.Context) {
	list := s.queue.List()
	c.JSON(http.StatusOK, gin.H{
		"jobs":  list,
		"total": len(list),
	})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.queue.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) cancelJob(c *gin.Context) {
	switch err := s.queue.Cancel(c.Param("id")); {
	case errors.Is(err, jobs.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case err != nil:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "job cancelled"})
	}
}

// compareRequest carries the track either as a feature record ("features") or as the
// summary the analyze endpoint returns ("summary"). Summary values win.
type compareRequest struct {
	Features *features.Record `json:"features"`
	Summary  *summaryValues   `json:"summary"`
	Artists  []string         `json:"artists"`
}

// summaryValues holds the compared dimensions under their summary names
type summaryValues struct {
	Tempo      *summaryValue `json:"tempo"`
	Loudness   *summaryValue `json:"loudness"`
	Dynamics   *summaryValue `json:"dynamics"`
	MixBalance *summaryValue `json:"mixBalance"`
}

type summaryValue struct {
	Value float64 `json:"value"`
}

func (v summaryValues) apply(record *features.Record) {
	for _, f := range []struct {
		from *summaryValue
		to   *features.Measure
	}{
		{v.Tempo, &record.Tempo},
		{v.Loudness, &record.Loudness},
		{v.Dynamics, &record.DynamicRange},
		{v.MixBalance, &record.SpectralBalance},
	} {
		if f.from != nil {
			f.to.Value = f.from.Value
		}
	}
}

func (s *Server) compare(c *gin.Context) {
	// fields missing from the posted body keep their defaults
	record := features.DefaultRecord("")
	req := compareRequest{Features: &record}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Summary != nil {
		req.Summary.apply(&record)
	}
	artists := splitArtists(req.Artists)
	if len(artists) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one artist is required"})
		return
	}
	if s.comparer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "comparison is not configured"})
		return
	}

	result := s.comparer.Compare(c.Request.Context(), record, artists)
	c.JSON(http.StatusOK, result)
}
