package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry collects process-wide counters and renders them in the
// Prometheus text exposition format.
type Registry struct {
	watchesAdded         atomic.Int64
	watchesRemoved       atomic.Int64
	watchesActive        atomic.Int64
	registrationFailures atomic.Int64
	staleWatches         atomic.Int64
	batchesDrained       atomic.Int64
	emptyBatches         atomic.Int64
	rewalks              atomic.Int64
	overflows            atomic.Int64
	watcherErrors        atomic.Int64
	buses                sync.Map
	httpRequests         sync.Map
	streamDrops          sync.Map
}

type busStats struct {
	published  sync.Map
	dropped    sync.Map
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncWatchAdded() {
	if r == nil {
		return
	}
	r.watchesAdded.Add(1)
	r.watchesActive.Add(1)
}

func (r *Registry) IncWatchRemoved() {
	if r == nil {
		return
	}
	r.watchesRemoved.Add(1)
	r.watchesActive.Add(-1)
}

func (r *Registry) IncRegistrationFailure() {
	if r == nil {
		return
	}
	r.registrationFailures.Add(1)
}

func (r *Registry) IncStaleWatch() {
	if r == nil {
		return
	}
	r.staleWatches.Add(1)
}

func (r *Registry) IncBatch(empty bool) {
	if r == nil {
		return
	}
	r.batchesDrained.Add(1)
	if empty {
		r.emptyBatches.Add(1)
	}
}

func (r *Registry) IncRewalk() {
	if r == nil {
		return
	}
	r.rewalks.Add(1)
}

func (r *Registry) IncOverflow() {
	if r == nil {
		return
	}
	r.overflows.Add(1)
}

func (r *Registry) IncWatcherError() {
	if r == nil {
		return
	}
	r.watcherErrors.Add(1)
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	incLabeled(&r.bus(bus).published, eventType)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	incLabeled(&r.bus(bus).dropped, eventType)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	stats := r.bus(bus)
	stats.filtered.Store(int64(filtered))
	stats.unfiltered.Store(int64(unfiltered))
}

// IncHTTPRequest counts one served request for route.
func (r *Registry) IncHTTPRequest(route string) {
	if r == nil {
		return
	}
	incLabeled(&r.httpRequests, route)
}

// IncStreamDropped counts one message a websocket stream skipped because
// its send rate was exceeded.
func (r *Registry) IncStreamDropped(stream string) {
	if r == nil {
		return
	}
	incLabeled(&r.streamDrops, stream)
}

// Snapshot is a point-in-time copy of the watcher counters.
type Snapshot struct {
	WatchesAdded         int64 `json:"watches_added"`
	WatchesRemoved       int64 `json:"watches_removed"`
	WatchesActive        int64 `json:"watches_active"`
	RegistrationFailures int64 `json:"registration_failures"`
	StaleWatches         int64 `json:"stale_watches"`
	BatchesDrained       int64 `json:"batches_drained"`
	EmptyBatches         int64 `json:"empty_batches"`
	Rewalks              int64 `json:"rewalks"`
	Overflows            int64 `json:"overflows"`
	WatcherErrors        int64 `json:"watcher_errors"`
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		WatchesAdded:         r.watchesAdded.Load(),
		WatchesRemoved:       r.watchesRemoved.Load(),
		WatchesActive:        r.watchesActive.Load(),
		RegistrationFailures: r.registrationFailures.Load(),
		StaleWatches:         r.staleWatches.Load(),
		BatchesDrained:       r.batchesDrained.Load(),
		EmptyBatches:         r.emptyBatches.Load(),
		Rewalks:              r.rewalks.Load(),
		Overflows:            r.overflows.Load(),
		WatcherErrors:        r.watcherErrors.Load(),
	}
}

// EventCount returns the published or dropped count for a bus and event type.
func (r *Registry) EventCount(bus, eventType string, dropped bool) int64 {
	if r == nil {
		return 0
	}
	stats := r.bus(bus)
	counters := &stats.published
	if dropped {
		counters = &stats.dropped
	}
	value, ok := counters.Load(eventType)
	if !ok {
		return 0
	}
	return value.(*atomic.Int64).Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	snapshot := r.Snapshot()
	writeCounter(writer, "gitwatch_watches_added_total", "Directory watches registered", snapshot.WatchesAdded)
	writeCounter(writer, "gitwatch_watches_removed_total", "Directory watches released", snapshot.WatchesRemoved)
	writeGauge(writer, "gitwatch_watches_active", "Directory watches currently registered", snapshot.WatchesActive)
	writeCounter(writer, "gitwatch_registration_failures_total", "Directories that could not be watched", snapshot.RegistrationFailures)
	writeCounter(writer, "gitwatch_stale_watches_total", "Watches dropped because their directory disappeared", snapshot.StaleWatches)
	writeCounter(writer, "gitwatch_batches_total", "Event batches drained", snapshot.BatchesDrained)
	writeCounter(writer, "gitwatch_empty_batches_total", "Event batches with no covered events", snapshot.EmptyBatches)
	writeCounter(writer, "gitwatch_rewalks_total", "Full tree re-walks", snapshot.Rewalks)
	writeCounter(writer, "gitwatch_overflows_total", "Kernel event queue overflows", snapshot.Overflows)
	writeCounter(writer, "gitwatch_watcher_errors_total", "Errors reported by the watch backend", snapshot.WatcherErrors)

	busNames := r.busNames()
	sort.Strings(busNames)

	writeHelp(writer, "gitwatch_events_published_total", "Events published per bus")
	fmt.Fprintln(writer, "# TYPE gitwatch_events_published_total counter")
	writeHelp(writer, "gitwatch_events_dropped_total", "Events dropped for full subscribers")
	fmt.Fprintln(writer, "# TYPE gitwatch_events_dropped_total counter")
	writeHelp(writer, "gitwatch_event_subscribers", "Active bus subscribers")
	fmt.Fprintln(writer, "# TYPE gitwatch_event_subscribers gauge")

	for _, name := range busNames {
		stats := r.bus(name)
		label := formatLabel(name)
		for _, entry := range labeledValues(&stats.published) {
			fmt.Fprintf(writer, "gitwatch_events_published_total{bus=%s,type=%s} %d\n", label, formatLabel(entry.key), entry.value)
		}
		for _, entry := range labeledValues(&stats.dropped) {
			fmt.Fprintf(writer, "gitwatch_events_dropped_total{bus=%s,type=%s} %d\n", label, formatLabel(entry.key), entry.value)
		}
		fmt.Fprintf(writer, "gitwatch_event_subscribers{bus=%s,filtered=\"true\"} %d\n", label, stats.filtered.Load())
		fmt.Fprintf(writer, "gitwatch_event_subscribers{bus=%s,filtered=\"false\"} %d\n", label, stats.unfiltered.Load())
	}

	writeHelp(writer, "gitwatch_http_requests_total", "HTTP requests served per route")
	fmt.Fprintln(writer, "# TYPE gitwatch_http_requests_total counter")
	for _, entry := range labeledValues(&r.httpRequests) {
		fmt.Fprintf(writer, "gitwatch_http_requests_total{route=%s} %d\n", formatLabel(entry.key), entry.value)
	}
	writeHelp(writer, "gitwatch_stream_dropped_total", "Websocket messages skipped by the send limiter")
	fmt.Fprintln(writer, "# TYPE gitwatch_stream_dropped_total counter")
	for _, entry := range labeledValues(&r.streamDrops) {
		fmt.Fprintf(writer, "gitwatch_stream_dropped_total{stream=%s} %d\n", formatLabel(entry.key), entry.value)
	}

	return nil
}

func (r *Registry) bus(name string) *busStats {
	if strings.TrimSpace(name) == "" {
		name = "event_bus"
	}
	value, _ := r.buses.LoadOrStore(name, &busStats{})
	return value.(*busStats)
}

func (r *Registry) busNames() []string {
	var names []string
	r.buses.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

type labeledValue struct {
	key   string
	value int64
}

func incLabeled(counters *sync.Map, label string) {
	if label == "" {
		label = "unknown"
	}
	value, _ := counters.LoadOrStore(label, &atomic.Int64{})
	value.(*atomic.Int64).Add(1)
}

func labeledValues(counters *sync.Map) []labeledValue {
	var values []labeledValue
	counters.Range(func(key, value interface{}) bool {
		values = append(values, labeledValue{key: key.(string), value: value.(*atomic.Int64).Load()})
		return true
	})
	sort.Slice(values, func(i, j int) bool {
		return values[i].key < values[j].key
	})
	return values
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeGauge(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
