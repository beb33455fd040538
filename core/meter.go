package core

// meter.go implements the thread-safe contribution meter. Counters are plain
// atomics so the happy path never takes a lock; peak memory uses a
// compare-and-swap loop.

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ContributionMeter records per-request work and produces immutable
// snapshots. All counters are safe for concurrent use without external
// locking.
type ContributionMeter struct {
	inferenceRequests uint64
	promptRequests    uint64
	tensorRequests    uint64
	tokensProcessed   uint64
	computeTimeMs     uint64
	bytesProcessed    uint64
	failures          uint64
	peakMemoryMiB     uint64
	latencySumMs      uint64
	latencyCount      uint64
}

// NewContributionMeter returns a zeroed meter.
func NewContributionMeter() *ContributionMeter {
	return &ContributionMeter{}
}

// RecordPrompt increments counters for a completed prompt request.
func (m *ContributionMeter) RecordPrompt(tokens uint64, computeMs uint64, bytes uint64) {
	atomic.AddUint64(&m.inferenceRequests, 1)
	atomic.AddUint64(&m.promptRequests, 1)
	atomic.AddUint64(&m.tokensProcessed, tokens)
	atomic.AddUint64(&m.computeTimeMs, computeMs)
	atomic.AddUint64(&m.bytesProcessed, bytes)
	atomic.AddUint64(&m.latencySumMs, computeMs)
	atomic.AddUint64(&m.latencyCount, 1)
}

// RecordTensor increments counters for a completed tensor request.
func (m *ContributionMeter) RecordTensor(computeMs uint64, bytes uint64) {
	atomic.AddUint64(&m.inferenceRequests, 1)
	atomic.AddUint64(&m.tensorRequests, 1)
	atomic.AddUint64(&m.computeTimeMs, computeMs)
	atomic.AddUint64(&m.bytesProcessed, bytes)
	atomic.AddUint64(&m.latencySumMs, computeMs)
	atomic.AddUint64(&m.latencyCount, 1)
}

// RecordFailure increments the failure counter only.
func (m *ContributionMeter) RecordFailure() {
	atomic.AddUint64(&m.failures, 1)
}

// UpdatePeakMemory raises the recorded peak memory to mib if mib is larger,
// via a compare-and-swap loop.
func (m *ContributionMeter) UpdatePeakMemory(mib uint64) {
	for {
		cur := atomic.LoadUint64(&m.peakMemoryMiB)
		if mib <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&m.peakMemoryMiB, cur, mib) {
			return
		}
	}
}

// Reset zeros every counter. Not atomic as a whole — concurrent readers may
// observe a partially reset state, which is acceptable for this
// eventually-consistent reporting contract.
func (m *ContributionMeter) Reset() {
	atomic.StoreUint64(&m.inferenceRequests, 0)
	atomic.StoreUint64(&m.promptRequests, 0)
	atomic.StoreUint64(&m.tensorRequests, 0)
	atomic.StoreUint64(&m.tokensProcessed, 0)
	atomic.StoreUint64(&m.computeTimeMs, 0)
	atomic.StoreUint64(&m.bytesProcessed, 0)
	atomic.StoreUint64(&m.failures, 0)
	atomic.StoreUint64(&m.peakMemoryMiB, 0)
	atomic.StoreUint64(&m.latencySumMs, 0)
	atomic.StoreUint64(&m.latencyCount, 0)
}

// ContributionSnapshot is an immutable point-in-time read of the meter.
type ContributionSnapshot struct {
	InferenceRequests uint64
	PromptRequests    uint64
	TensorRequests    uint64
	TokensProcessed   uint64
	ComputeTimeMs     uint64
	BytesProcessed    uint64
	Failures          uint64
	PeakMemoryMiB     uint64
	AverageLatencyMs  float64
	Score             float64
}

// Snapshot returns an immutable ContributionSnapshot. averageLatencyMs is
// computed from the same observed latencyCount used to guard division.
func (m *ContributionMeter) Snapshot() ContributionSnapshot {
	count := atomic.LoadUint64(&m.latencyCount)
	sum := atomic.LoadUint64(&m.latencySumMs)
	denom := count
	if denom == 0 {
		denom = 1
	}
	avg := float64(sum) / float64(denom)

	reqs := atomic.LoadUint64(&m.inferenceRequests)
	tokens := atomic.LoadUint64(&m.tokensProcessed)
	compute := atomic.LoadUint64(&m.computeTimeMs)
	failures := atomic.LoadUint64(&m.failures)

	score := float64(reqs)*1.0 + float64(tokens)*0.1 + float64(compute)*0.001
	if failures == 0 {
		score *= 1.2
	}

	return ContributionSnapshot{
		InferenceRequests: reqs,
		PromptRequests:    atomic.LoadUint64(&m.promptRequests),
		TensorRequests:    atomic.LoadUint64(&m.tensorRequests),
		TokensProcessed:   tokens,
		ComputeTimeMs:     compute,
		BytesProcessed:    atomic.LoadUint64(&m.bytesProcessed),
		Failures:          failures,
		PeakMemoryMiB:     atomic.LoadUint64(&m.peakMemoryMiB),
		AverageLatencyMs:  avg,
		Score:             score,
	}
}

// PrometheusCollectors returns the gauges/counters a caller should register
// against a prometheus.Registry to expose this meter on a /metrics endpoint.
func (m *ContributionMeter) PrometheusCollectors(nodeID string) []prometheus.Collector {
	labels := prometheus.Labels{"node_id": nodeID}
	requestsGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ringnode_inference_requests_total",
		Help:        "Total inference requests handled by this node.",
		ConstLabels: labels,
	}, func() float64 { return float64(atomic.LoadUint64(&m.inferenceRequests)) })
	tokensGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ringnode_tokens_processed_total",
		Help:        "Total tokens processed by this node's prompt path.",
		ConstLabels: labels,
	}, func() float64 { return float64(atomic.LoadUint64(&m.tokensProcessed)) })
	computeGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ringnode_compute_time_ms_total",
		Help:        "Total simulated/measured compute time in milliseconds.",
		ConstLabels: labels,
	}, func() float64 { return float64(atomic.LoadUint64(&m.computeTimeMs)) })
	bytesGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ringnode_bytes_processed_total",
		Help:        "Total bytes of prompt/tensor payloads processed.",
		ConstLabels: labels,
	}, func() float64 { return float64(atomic.LoadUint64(&m.bytesProcessed)) })
	failuresGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ringnode_failures_total",
		Help:        "Total failed inference requests.",
		ConstLabels: labels,
	}, func() float64 { return float64(atomic.LoadUint64(&m.failures)) })
	peakMemGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ringnode_peak_memory_mib",
		Help:        "Highest reported peak memory usage in MiB.",
		ConstLabels: labels,
	}, func() float64 { return float64(atomic.LoadUint64(&m.peakMemoryMiB)) })
	scoreGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ringnode_contribution_score",
		Help:        "Derived contribution score (see Snapshot).",
		ConstLabels: labels,
	}, func() float64 { return m.Snapshot().Score })

	return []prometheus.Collector{
		requestsGauge, tokensGauge, computeGauge, bytesGauge, failuresGauge, peakMemGauge, scoreGauge,
	}
}
