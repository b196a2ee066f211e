package httpx

import (
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// CompressionConfig configures the gzip middleware.
type CompressionConfig struct {
	Level   int // gzip level; out-of-range values fall back to gzip.DefaultCompression
	MinSize int // bodies shorter than this are sent uncompressed
	Logger  *slog.Logger
}

// Compression gzips JSON and text responses for clients that accept it.
// Responses are buffered until MinSize bytes are written so small job
// payloads skip the gzip framing overhead.
func Compression(cfg CompressionConfig) func(http.Handler) http.Handler {
	level := cfg.Level
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool := &sync.Pool{New: func() any {
		gz, _ := gzip.NewWriterLevel(io.Discard, level)
		return gz
	}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Accept-Encoding")

			cw := &compressWriter{ResponseWriter: w, pool: pool, minSize: cfg.MinSize}
			next.ServeHTTP(cw, r)
			if err := cw.finish(); err != nil {
				logger.ErrorContext(r.Context(), "finishing compressed response failed", "error", err)
			}
		})
	}
}

// acceptsGzip reports whether the Accept-Encoding header allows gzip,
// honouring q=0 exclusions and the "*" wildcard.
func acceptsGzip(header string) bool {
	gzipQ, starQ := -1.0, -1.0
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				continue
			}
			q = parsed
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gzip", "x-gzip":
			gzipQ = q
		case "*":
			starQ = q
		}
	}
	if gzipQ >= 0 {
		return gzipQ > 0
	}
	return starQ > 0
}

func compressibleType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return true
	case mediaType == "application/x-ndjson", mediaType == "application/xml":
		return true
	}
	return false
}

func bodylessStatus(code int) bool {
	return code < http.StatusOK || code == http.StatusNoContent || code == http.StatusNotModified
}

// compressWriter holds the status and the first bytes of the body until it
// can tell whether the response is worth compressing.
type compressWriter struct {
	http.ResponseWriter
	pool    *sync.Pool
	minSize int

	status  int
	buf     []byte
	decided bool
	gz      *gzip.Writer
}

func (w *compressWriter) WriteHeader(code int) {
	if w.decided || w.status != 0 {
		return
	}
	w.status = code
	if bodylessStatus(code) {
		w.commit(false)
	}
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.decided {
		return w.sink().Write(b)
	}
	w.buf = append(w.buf, b...)
	if len(w.buf) >= w.minSize {
		if err := w.commit(true); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// Flush commits to a decision with whatever has been buffered so far.
func (w *compressWriter) Flush() {
	if !w.decided {
		_ = w.commit(len(w.buf) >= w.minSize)
	}
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *compressWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *compressWriter) sink() io.Writer {
	if w.gz != nil {
		return w.gz
	}
	return w.ResponseWriter
}

// commit writes the header and any buffered bytes. large reports whether the
// body reached the size threshold.
func (w *compressWriter) commit(large bool) error {
	w.decided = true
	if w.status == 0 {
		w.status = http.StatusOK
	}

	h := w.Header()
	if h.Get("Content-Type") == "" && len(w.buf) > 0 {
		h.Set("Content-Type", http.DetectContentType(w.buf))
	}
	if large && !bodylessStatus(w.status) && h.Get("Content-Encoding") == "" && compressibleType(h.Get("Content-Type")) {
		h.Set("Content-Encoding", "gzip")
		h.Del("Content-Length")
		w.gz = w.pool.Get().(*gzip.Writer)
		w.gz.Reset(w.ResponseWriter)
	}

	w.ResponseWriter.WriteHeader(w.status)
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.sink().Write(w.buf)
	w.buf = nil
	return err
}

func (w *compressWriter) finish() error {
	if !w.decided {
		if w.status == 0 && len(w.buf) == 0 {
			// Handler wrote nothing; let net/http send its implicit 200.
			return nil
		}
		if err := w.commit(len(w.buf) >= w.minSize); err != nil {
			return err
		}
	}
	if w.gz == nil {
		return nil
	}
	err := w.gz.Close()
	w.gz.Reset(io.Discard)
	w.pool.Put(w.gz)
	w.gz = nil
	return err
}
