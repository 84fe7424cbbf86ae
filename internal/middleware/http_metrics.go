package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are served verbatim as metric labels.
var staticRoutes = map[string]bool{
	"/":                        true,
	"/videos":                  true,
	"/videos/add":              true,
	"/videos/update-durations": true,
	"/history":                 true,
	"/analytics":               true,
	"/notes":                   true,
	"/playlists":               true,
	"/playlists/import":        true,
	"/search":                  true,
	"/search/cache":            true,
	"/progress/ws":             true,
	"/health":                  true,
	"/ready":                   true,
	"/metrics":                 true,
}

// normalizePath maps concrete request paths onto route patterns so that
// metric label cardinality stays bounded, e.g. /videos/abc becomes /videos/{id}.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) < 3 || parts[2] == "" {
		return "other"
	}

	switch parts[1] {
	case "videos", "notes":
		if len(parts) == 3 {
			return "/" + parts[1] + "/{id}"
		}
	case "playlists":
		if len(parts) == 3 {
			return "/playlists/{id}"
		}
		if len(parts) == 4 && parts[3] == "videos" {
			return "/playlists/{id}/videos"
		}
	}

	// Unknown paths collapse into one label; scanners would otherwise mint series.
	return "other"
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	metrics     *Metrics
	statusCode  int
	size        int64
	wroteHeader bool
	hijacked    bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// Hijack moves the request from the in-flight gauge to the socket gauge.
func (mrw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(mrw.ResponseWriter).Hijack()
	if err != nil {
		return nil, nil, err
	}
	mrw.statusCode = http.StatusSwitchingProtocols
	mrw.hijacked = true
	mrw.metrics.httpInFlight.Dec()
	mrw.metrics.SocketOpened()
	return conn, brw, nil
}

func newMetricsResponseWriter(w http.ResponseWriter, m *Metrics) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		metrics:        m,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics records latency, response size and counts per normalized route.
// Probe and scrape endpoints are not recorded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health", "/ready", "/metrics":
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			metrics.httpInFlight.Inc()
			mrw := newMetricsResponseWriter(w, metrics)

			next.ServeHTTP(mrw, r)

			if mrw.hijacked {
				metrics.SocketClosed()
			} else {
				metrics.httpInFlight.Dec()
			}
			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				mrw.size,
			)
		})
	}
}
