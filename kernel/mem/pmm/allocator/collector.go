package allocator

import "github.com/prometheus/client_golang/prometheus"

// Collector exports the counters of a ClockAllocator as prometheus metrics.
type Collector struct {
	alloc *ClockAllocator

	totalFrames   *prometheus.Desc
	freeFrames    *prometheus.Desc
	ringFrames    *prometheus.Desc
	evictions     *prometheus.Desc
	reclaimRuns   *prometheus.Desc
	allocFailures *prometheus.Desc
}

// NewCollector returns a collector for the supplied allocator.
func NewCollector(alloc *ClockAllocator) *Collector {
	return &Collector{
		alloc:         alloc,
		totalFrames:   prometheus.NewDesc("kmem_total_frames", "Number of physical frames tracked by the allocator.", nil, nil),
		freeFrames:    prometheus.NewDesc("kmem_free_frames", "Number of frames in the free pool.", nil, nil),
		ringFrames:    prometheus.NewDesc("kmem_ring_frames", "Number of frames linked into the eviction ring.", nil, nil),
		evictions:     prometheus.NewDesc("kmem_evictions_total", "Number of user pages written out to swap.", nil, nil),
		reclaimRuns:   prometheus.NewDesc("kmem_reclaim_runs_total", "Number of clock sweeps started by the allocator.", nil, nil),
		allocFailures: prometheus.NewDesc("kmem_alloc_failures_total", "Number of frame allocations that failed.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalFrames
	ch <- c.freeFrames
	ch <- c.ringFrames
	ch <- c.evictions
	ch <- c.reclaimRuns
	ch <- c.allocFailures
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.alloc.Stats()

	ch <- prometheus.MustNewConstMetric(c.totalFrames, prometheus.GaugeValue, float64(st.TotalFrames))
	ch <- prometheus.MustNewConstMetric(c.freeFrames, prometheus.GaugeValue, float64(st.FreeFrames))
	ch <- prometheus.MustNewConstMetric(c.ringFrames, prometheus.GaugeValue, float64(st.RingFrames))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(st.Evictions))
	ch <- prometheus.MustNewConstMetric(c.reclaimRuns, prometheus.CounterValue, float64(st.ReclaimRuns))
	ch <- prometheus.MustNewConstMetric(c.allocFailures, prometheus.CounterValue, float64(st.AllocFailures))
}
