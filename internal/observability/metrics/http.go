package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const namespace = "solana_mcp"

var (
	httpBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// 工具调用包含链上确认，耗时分布比 HTTP 请求长得多。
	toolBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
)

// counterVec 是按标签值分组的计数器。
type counterVec struct {
	name, help string
	labels     []string
	values     map[string]uint64
}

func newCounterVec(name, help string, labels ...string) *counterVec {
	return &counterVec{name: name, help: help, labels: labels, values: make(map[string]uint64)}
}

func (v *counterVec) inc(values ...string) {
	v.values[joinLabels(values)]++
}

func (v *counterVec) write(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s_%s %s\n# TYPE %s_%s counter\n", namespace, v.name, v.help, namespace, v.name)
	for _, key := range sortedKeys(v.values) {
		fmt.Fprintf(w, "%s_%s{%s} %d\n", namespace, v.name, renderLabels(v.labels, key, ""), v.values[key])
	}
}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

// histogramVec 是按标签值分组的直方图，counts 为各上界的累计值。
type histogramVec struct {
	name, help string
	labels     []string
	buckets    []float64
	values     map[string]*histogram
}

func newHistogramVec(name, help string, buckets []float64, labels ...string) *histogramVec {
	return &histogramVec{name: name, help: help, labels: labels, buckets: buckets, values: make(map[string]*histogram)}
}

func (v *histogramVec) observe(seconds float64, values ...string) {
	key := joinLabels(values)
	h := v.values[key]
	if h == nil {
		h = &histogram{counts: make([]uint64, len(v.buckets))}
		v.values[key] = h
	}
	h.count++
	h.sum += seconds
	for i, bound := range v.buckets {
		if seconds <= bound {
			h.counts[i]++
		}
	}
}

func (v *histogramVec) write(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s_%s %s\n# TYPE %s_%s histogram\n", namespace, v.name, v.help, namespace, v.name)
	for _, key := range sortedKeys(v.values) {
		h := v.values[key]
		for i, bound := range v.buckets {
			fmt.Fprintf(w, "%s_%s_bucket{%s} %d\n", namespace, v.name, renderLabels(v.labels, key, formatFloat(bound)), h.counts[i])
		}
		fmt.Fprintf(w, "%s_%s_bucket{%s} %d\n", namespace, v.name, renderLabels(v.labels, key, "+Inf"), h.count)
		fmt.Fprintf(w, "%s_%s_sum{%s} %s\n", namespace, v.name, renderLabels(v.labels, key, ""), formatFloat(h.sum))
		fmt.Fprintf(w, "%s_%s_count{%s} %d\n", namespace, v.name, renderLabels(v.labels, key, ""), h.count)
	}
}

type collector struct {
	mu          sync.Mutex
	requests    *counterVec
	errors      *counterVec
	latency     *histogramVec
	tools       *counterVec
	toolLatency *histogramVec
	sessions    int64
}

var defaultCollector = newCollector()

func newCollector() *collector {
	return &collector{
		requests: newCounterVec("http_requests_total", "Total number of HTTP requests processed.", "handler", "method", "code"),
		errors:   newCounterVec("http_request_errors_total", "Total number of HTTP requests that resulted in a server error.", "handler", "method"),
		latency: newHistogramVec("http_request_duration_seconds", "HTTP request duration in seconds.",
			httpBuckets, "handler", "method"),
		tools: newCounterVec("tool_calls_total", "Total number of tool invocations.", "action", "status"),
		toolLatency: newHistogramVec("tool_call_duration_seconds", "Tool invocation duration in seconds.",
			toolBuckets, "action"),
	}
}

// SetActiveSessions records the number of sessions currently registered.
func SetActiveSessions(n int) {
	defaultCollector.mu.Lock()
	defaultCollector.sessions = int64(n)
	defaultCollector.mu.Unlock()
}

// ObserveToolCall counts one tool invocation by action name and outcome.
func ObserveToolCall(action, status string, duration time.Duration) {
	defaultCollector.observeTool(action, status, duration)
}

// ObserveHTTPRequest records one finished HTTP request. Long-lived /sse
// streams are observed when the stream closes.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	defaultCollector.observe(handler, method, status, duration)
}

func (c *collector) observe(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests.inc(handler, method, strconv.Itoa(status))
	if status >= 500 {
		c.errors.inc(handler, method)
	}
	c.latency.observe(duration.Seconds(), handler, method)
}

func (c *collector) observeTool(action, status string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools.inc(action, status)
	c.toolLatency.observe(duration.Seconds(), action)
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = io.WriteString(w, defaultCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	c.requests.write(&b)
	c.errors.write(&b)
	c.latency.write(&b)
	fmt.Fprintf(&b, "# HELP %s_active_sessions Number of sessions currently registered.\n", namespace)
	fmt.Fprintf(&b, "# TYPE %s_active_sessions gauge\n", namespace)
	fmt.Fprintf(&b, "%s_active_sessions %d\n", namespace, c.sessions)
	c.tools.write(&b)
	c.toolLatency.write(&b)
	return b.String()
}

// 标签值以 \x00 连接作为 map 键，escape 会去掉换行但不会产生 \x00。
func joinLabels(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = escape(v)
	}
	return strings.Join(escaped, "\x00")
}

func renderLabels(names []string, key, le string) string {
	values := strings.Split(key, "\x00")
	parts := make([]string, 0, len(names)+1)
	for i, name := range names {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		parts = append(parts, name+`="`+value+`"`)
	}
	if le != "" {
		parts = append(parts, `le="`+le+`"`)
	}
	return strings.Join(parts, ",")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer serves /metrics on its own listener until ctx is cancelled.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
