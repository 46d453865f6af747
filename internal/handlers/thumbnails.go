package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"

	"video-thumbnail/internal/batch"
	"video-thumbnail/internal/cache"
	"video-thumbnail/internal/capability"
	"video-thumbnail/internal/encoder"
	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/media"
	"video-thumbnail/internal/thumbnail"
)

// maxBatchBody bounds the JSON body of a batch request.
const maxBatchBody = 1 << 20

// ThumbnailsResponse is the body of a single-source extraction.
type ThumbnailsResponse struct {
	URL        string             `json:"url"`
	Thumbnails []thumbnail.Result `json:"thumbnails"`
}

// BatchRequest is the body of a batch extraction.
type BatchRequest struct {
	URLs    []string          `json:"urls"`
	Options thumbnail.Options `json:"options"`
}

// BatchResponse is the result of a batch extraction.
type BatchResponse struct {
	Results []batch.SourceResult `json:"results"`
	Summary batch.Summary        `json:"summary"`
}

// GetThumbnails extracts thumbnails for the url query parameter.
func (h *Handlers) GetThumbnails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := strings.TrimSpace(q.Get("url"))
	if source == "" {
		writeJSONError(w, "url is required", http.StatusBadRequest)
		return
	}

	opts, err := parseOptions(q)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.engine.Extract(r.Context(), h.engine.Resolve(source, opts))
	if err != nil {
		code := extractionStatus(err)
		if code == statusClientClosedRequest {
			logging.Debug("Client went away during extraction of %s", source)
			return
		}
		writeJSONError(w, err.Error(), code)
		return
	}
	if results == nil {
		results = []thumbnail.Result{}
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSONStatusCode(w, http.StatusOK, ThumbnailsResponse{URL: source, Thumbnails: results})
}

// PostBatch extracts thumbnails for several sources with shared options.
func (h *Handlers) PostBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	switch {
	case len(urls) == 0:
		writeJSONError(w, "urls must not be empty", http.StatusBadRequest)
		return
	case len(urls) > h.maxBatchURLs:
		writeJSONError(w, fmt.Sprintf("at most %d urls per batch", h.maxBatchURLs), http.StatusRequestEntityTooLarge)
		return
	}

	if !h.engine.Support().CanCapture {
		writeJSONError(w, capability.ErrUnsupportedRuntime.Error(), http.StatusServiceUnavailable)
		return
	}

	results, summary := h.batch.Run(r.Context(), urls, req.Options)
	w.Header().Set("Cache-Control", "no-store")
	writeJSONStatusCode(w, http.StatusOK, BatchResponse{Results: results, Summary: summary})
}

// CapabilitiesResponse describes what the runtime supports.
type CapabilitiesResponse struct {
	capability.Support
	DirectResize     bool   `json:"directResize"`
	CacheBackend     string `json:"cacheBackend"`
	DefaultNamespace string `json:"defaultNamespace"`
	BatchWorkers     int    `json:"batchWorkers"`
	GOMAXPROCS       int    `json:"gomaxprocs"`
}

// GetCapabilities reports the probed capabilities.
func (h *Handlers) GetCapabilities(w http.ResponseWriter, _ *http.Request) {
	resp := CapabilitiesResponse{
		Support:          h.engine.Support(),
		CacheBackend:     h.cache.Backend(),
		DefaultNamespace: h.engine.Namespace(),
		GOMAXPROCS:       runtime.GOMAXPROCS(0),
	}
	if h.resizer != nil {
		resp.DirectResize = h.resizer.Available()
	}
	if h.batch != nil {
		resp.BatchWorkers = h.batch.Workers()
	}
	writeJSONStatusCode(w, http.StatusOK, resp)
}

// statusClientClosedRequest marks a request whose client disconnected.
const statusClientClosedRequest = 499

func extractionStatus(err error) int {
	switch {
	case errors.Is(err, capability.ErrUnsupportedRuntime):
		return http.StatusServiceUnavailable
	case errors.Is(err, media.ErrLoadTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, media.ErrLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseOptions maps query parameters onto thumbnail.Options. Values that
// do not parse are rejected; values that parse but are out of range fall
// back to defaults during Resolve.
func parseOptions(q url.Values) (thumbnail.Options, error) {
	var opts thumbnail.Options

	if v := q.Get("time"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid time %q", v)
		}
		opts.Time = &t
	}

	for _, raw := range q["timestamps"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			ts, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return opts, fmt.Errorf("invalid timestamp %q", part)
			}
			opts.Timestamps = append(opts.Timestamps, ts)
		}
	}

	var err error
	if opts.Size, err = intParam(q, "size"); err != nil {
		return opts, err
	}
	if opts.Timeout, err = intParam(q, "timeout"); err != nil {
		return opts, err
	}
	if opts.Timeout > thumbnail.MaxTimeoutMillis {
		return opts, fmt.Errorf("timeout %d exceeds the maximum of %dms", opts.Timeout, thumbnail.MaxTimeoutMillis)
	}

	if mimeType := q.Get("mime"); mimeType != "" {
		f := encoder.Format{MimeType: mimeType}
		if v := q.Get("quality"); v != "" {
			if f.Quality, err = strconv.ParseFloat(v, 64); err != nil {
				return opts, fmt.Errorf("invalid quality %q", v)
			}
		}
		opts.Mime = &f
	}

	if v := q.Get("type"); v != "" {
		if _, ok := encoder.ParseOutputMode(v); !ok {
			return opts, fmt.Errorf("invalid type %q, want dataURI or objectURL", v)
		}
		opts.Type = v
	}

	if v := q.Get("cache"); v != "" {
		if opts.Cache, err = strconv.ParseBool(v); err != nil {
			return opts, fmt.Errorf("invalid cache %q", v)
		}
	}
	if v := q.Get("cacheKeyPrefix"); v != "" {
		if !cache.ValidNamespace(v) {
			return opts, fmt.Errorf("invalid cacheKeyPrefix %q", v)
		}
		opts.CacheKeyPrefix = v
	}

	return opts, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}
