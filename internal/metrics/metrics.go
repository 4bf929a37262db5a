// Package metrics объявляет метрики Prometheus ledger-а.
// Метрики регистрируются в глобальном реестре и отдаются через promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ledger"

var (
	// StoreOperationDuration длительность критической секции хранилища.
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_operation_duration_seconds",
		Help:      "Duration of serialized store operations, including load and save.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind", "result"})

	// StoreQueueDepth число операций, ожидающих своей очереди.
	StoreQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_queue_depth",
		Help:      "Number of store operations waiting for exclusive access.",
	})

	// RendersTotal попытки списания рендера по состоянию квоты и результату.
	RendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "renders_total",
		Help:      "Render consumption attempts by quota state and result.",
	}, []string{"state", "result"})

	// BillingEventsTotal обработанные события платёжного провайдера.
	BillingEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_events_total",
		Help:      "Billing webhook events by type and result.",
	}, []string{"event", "result"})

	// NotificationsTotal опубликованные уведомления.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications handed to the broker by kind and result.",
	}, []string{"kind", "result"})
)

// Метки результата.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// Result возвращает метку результата по ошибке.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// StoreResult метка результата операции хранилища. Отказ самой работы
// (rejected) не считается сбоем: сбоем остаются ошибки носителя, паника и
// истёкший контекст.
func StoreResult(err error, rejected bool) string {
	switch {
	case err == nil:
		return ResultOK
	case rejected:
		return ResultRejected
	default:
		return ResultError
	}
}
