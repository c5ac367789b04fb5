package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type MarketMetrics struct {
	paymentsProcessed prometheus.Counter
	paymentVolume     prometheus.Counter
	feeVolume         prometheus.Counter
	duplicateRejected prometheus.Counter
	contentPublished  prometheus.Counter
	storageRent       prometheus.Counter
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			paymentsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_payments_processed_total",
				Help: "Count of settled content payments.",
			}),
			paymentVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_payment_volume_units",
				Help: "Total value settled through payments, in smallest currency units.",
			}),
			feeVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_fee_volume_units",
				Help: "Total platform fees taken out of payments, in smallest currency units.",
			}),
			duplicateRejected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_duplicate_payments_rejected_total",
				Help: "Count of payments rejected by an existing access receipt.",
			}),
			contentPublished: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_content_published_total",
				Help: "Count of content items appended to creator catalogues.",
			}),
			storageRent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_storage_rent_units",
				Help: "Total storage rent charged for record growth, in smallest currency units.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.paymentsProcessed,
			marketRegistry.paymentVolume,
			marketRegistry.feeVolume,
			marketRegistry.duplicateRejected,
			marketRegistry.contentPublished,
			marketRegistry.storageRent,
		)
	})
	return marketRegistry
}

func (m *MarketMetrics) ObservePayment(total *big.Int, fee *big.Int) {
	if m == nil {
		return
	}
	m.paymentsProcessed.Inc()
	if total != nil {
		value, _ := new(big.Float).SetInt(total).Float64()
		m.paymentVolume.Add(value)
	}
	if fee != nil {
		value, _ := new(big.Float).SetInt(fee).Float64()
		m.feeVolume.Add(value)
	}
}

func (m *MarketMetrics) ObserveDuplicatePayment() {
	if m == nil {
		return
	}
	m.duplicateRejected.Inc()
}

func (m *MarketMetrics) ObserveContentPublished() {
	if m == nil {
		return
	}
	m.contentPublished.Inc()
}

func (m *MarketMetrics) ObserveStorageRent(cost *big.Int) {
	if m == nil {
		return
	}
	if cost != nil {
		value, _ := new(big.Float).SetInt(cost).Float64()
		m.storageRent.Add(value)
	}
}
