package chain

import "github.com/prometheus/client_golang/prometheus"

// chainMetrics backs the optional Prometheus counters SPEC_FULL.md's
// chain-store section promises: pending queue depth, blocks mined, and
// filters installed. Registered against a private registry rather than
// prometheus.DefaultRegisterer, so creating more than one Chain in a test
// binary never panics with "duplicate metrics collector registration".
type chainMetrics struct {
	registry         *prometheus.Registry
	pendingDepth     prometheus.Gauge
	blocksMined      prometheus.Counter
	filtersInstalled prometheus.Counter
}

func newChainMetrics() *chainMetrics {
	m := &chainMetrics{
		registry: prometheus.NewRegistry(),
		pendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evmdev_chain_pending_depth",
			Help: "Transactions currently queued for the next mined block.",
		}),
		blocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evmdev_chain_blocks_mined_total",
			Help: "Blocks appended to the chain since start-up.",
		}),
		filtersInstalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evmdev_chain_filters_installed_total",
			Help: "Log, block, and pending-tx filters installed since start-up.",
		}),
	}
	m.registry.MustRegister(m.pendingDepth, m.blocksMined, m.filtersInstalled)
	return m
}

// Registry exposes the private Prometheus registry backing this chain's
// counters, which rpc.New serves on its /metrics route.
func (c *Chain) Registry() *prometheus.Registry { return c.metrics.registry }
