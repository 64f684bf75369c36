package node

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spectrum-chain/litewallet/core/chain"
)

type metrics struct {
	registry     *prometheus.Registry
	height       prometheus.Gauge
	blocks       prometheus.Counter
	transactions prometheus.Counter
	mempoolSize  prometheus.Gauge
	requests     *prometheus.CounterVec
	rejected     *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "litenode",
			Name:      "chain_height",
			Help:      "Height of the chain tip.",
		}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litenode",
			Name:      "blocks_produced_total",
			Help:      "Blocks produced by this node.",
		}),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litenode",
			Name:      "transactions_mined_total",
			Help:      "Transactions included in produced blocks.",
		}),
		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "litenode",
			Name:      "mempool_transactions",
			Help:      "Transactions waiting in the mempool.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litenode",
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litenode",
			Name:      "rejected_transactions_total",
			Help:      "Submitted transactions that failed verification.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.height, m.blocks, m.transactions, m.mempoolSize, m.requests, m.rejected)
	return m
}

func (m *metrics) observeBlock(b *chain.Block) {
	m.height.Set(float64(b.Height))
	m.blocks.Inc()
	m.transactions.Add(float64(len(b.Transactions)))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
