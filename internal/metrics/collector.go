// Package metrics exposes pkg/sevenk.Parser counters as Prometheus
// metrics. Grounded on runZeroInc-sockstats's TCPInfoCollector: a
// mutex-guarded map of tracked objects keyed by an identifying label,
// polled into const metrics (counters, plus a gauge for unread bytes) on
// every Collect rather than pushed on every update.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reson7k/sonarcore/pkg/sevenk"
)

type parserEntry struct {
	parser *sevenk.Parser
	labels []string
}

// ParserCollector polls the running counters of a set of tracked
// *sevenk.Parser instances on every Prometheus scrape.
type ParserCollector struct {
	mu      sync.Mutex
	parsers map[string]parserEntry

	labelNames []string
	sourceDesc *prometheus.Desc
	parsedDesc *prometheus.Desc
	recordDesc *prometheus.Desc
	unreadDesc *prometheus.Desc
	syncDesc   *prometheus.Desc
	resyncDesc *prometheus.Desc
}

// NewParserCollector returns a collector whose metrics carry labelNames in
// addition to the fixed "source" identifier passed to Add/Remove.
func NewParserCollector(labelNames []string) *ParserCollector {
	names := append([]string{"source"}, labelNames...)
	return &ParserCollector{
		parsers:    make(map[string]parserEntry),
		labelNames: names,
		sourceDesc: prometheus.NewDesc("sonarcore_parser_source_bytes_total", "Bytes read from the transport.", names, nil),
		parsedDesc: prometheus.NewDesc("sonarcore_parser_parsed_bytes_total", "Bytes consumed as validated frames.", names, nil),
		recordDesc: prometheus.NewDesc("sonarcore_parser_records_total", "Frames successfully parsed.", names, nil),
		unreadDesc: prometheus.NewDesc("sonarcore_parser_unread_bytes", "Unconsumed bytes currently buffered.", names, nil),
		syncDesc:   prometheus.NewDesc("sonarcore_parser_sync_bytes_total", "Bytes discarded while resynchronizing on a sync pattern.", names, nil),
		resyncDesc: prometheus.NewDesc("sonarcore_parser_resync_total", "Number of times the parser had to resynchronize.", names, nil),
	}
}

// Add registers parser under source, so its counters appear in future scrapes.
func (c *ParserCollector) Add(source string, parser *sevenk.Parser, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parsers[source] = parserEntry{parser: parser, labels: append([]string{source}, labels...)}
}

// Remove stops reporting the parser registered under source.
func (c *ParserCollector) Remove(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.parsers, source)
}

func (c *ParserCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.sourceDesc
	descs <- c.parsedDesc
	descs <- c.recordDesc
	descs <- c.unreadDesc
	descs <- c.syncDesc
	descs <- c.resyncDesc
}

func (c *ParserCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.parsers {
		s := entry.parser.Stats()
		metrics <- prometheus.MustNewConstMetric(c.sourceDesc, prometheus.CounterValue, float64(s.SourceBytes), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.parsedDesc, prometheus.CounterValue, float64(s.ParsedBytes), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.recordDesc, prometheus.CounterValue, float64(s.ParsedRecords), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.unreadDesc, prometheus.GaugeValue, float64(s.UnreadBytes), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.syncDesc, prometheus.CounterValue, float64(s.SyncBytes), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.resyncDesc, prometheus.CounterValue, float64(s.ResyncCount), entry.labels...)
	}
}
