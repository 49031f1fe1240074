package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is a snapshot of connection pool counters.
type PoolStats struct {
	Total    int32
	Idle     int32
	Acquired int32
	Max      int32
}

// DBPoolStatFunc returns database pool statistics without importing pgxpool.
type DBPoolStatFunc func() PoolStats

type dbPoolCollector struct {
	statFunc DBPoolStatFunc
	descs    map[string]*prometheus.Desc
}

var poolGauges = []struct {
	name string
	help string
	pick func(PoolStats) int32
}{
	{"taskhub_db_pool_total_conns", "Total number of connections in the DB pool.", func(s PoolStats) int32 { return s.Total }},
	{"taskhub_db_pool_idle_conns", "Number of idle connections in the DB pool.", func(s PoolStats) int32 { return s.Idle }},
	{"taskhub_db_pool_acquired_conns", "Number of acquired connections in the DB pool.", func(s PoolStats) int32 { return s.Acquired }},
	{"taskhub_db_pool_max_conns", "Configured maximum size of the DB pool.", func(s PoolStats) int32 { return s.Max }},
}

// NewDBPoolCollector creates a collector that exposes DB pool gauges.
func NewDBPoolCollector(statFunc DBPoolStatFunc) prometheus.Collector {
	c := &dbPoolCollector{statFunc: statFunc, descs: make(map[string]*prometheus.Desc, len(poolGauges))}
	for _, g := range poolGauges {
		c.descs[g.name] = prometheus.NewDesc(g.name, g.help, nil, nil)
	}
	return c
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range poolGauges {
		ch <- c.descs[g.name]
	}
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.statFunc()
	for _, g := range poolGauges {
		ch <- prometheus.MustNewConstMetric(c.descs[g.name], prometheus.GaugeValue, float64(g.pick(stats)))
	}
}
