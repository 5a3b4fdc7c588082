package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики движка алертов
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ============ Метрики цикла оценки ============

// CycleDuration - длительность одного цикла оценки
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "alertd",
		Subsystem: "engine",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one evaluation cycle in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
)

// CyclesSkipped - циклы, пропущенные из-за еще идущего предыдущего
var CyclesSkipped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "alertd",
		Subsystem: "engine",
		Name:      "cycles_skipped_total",
		Help:      "Total number of ticks skipped because the previous cycle was still running",
	},
)

// AlertsEvaluated - количество вычисленных условий по итогу
var AlertsEvaluated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alertd",
		Subsystem: "engine",
		Name:      "alerts_evaluated_total",
		Help:      "Total number of alert evaluations",
	},
	[]string{"condition_type", "outcome"}, // fired, not_fired, skipped, error
)

// EvaluationDuration - длительность вычисления одного алерта
var EvaluationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "alertd",
		Subsystem: "engine",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of a single alert evaluation including market data fetch",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
	[]string{"condition_type"},
)

// TriggersTotal - срабатывания, прошедшие Trigger Gate
var TriggersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alertd",
		Subsystem: "engine",
		Name:      "triggers_total",
		Help:      "Total number of alert trigger events created",
	},
	[]string{"condition_type"},
)

// TriggersSuppressed - срабатывания, подавленные cooldown'ом или дневным лимитом
var TriggersSuppressed = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "alertd",
		Subsystem: "engine",
		Name:      "triggers_suppressed_total",
		Help:      "Total number of fired evaluations suppressed by cooldown or daily cap",
	},
)

// ============ Метрики доставки ============

// NotificationsSent - попытки доставки по итогу
var NotificationsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alertd",
		Subsystem: "dispatch",
		Name:      "notifications_total",
		Help:      "Total number of notification delivery attempts",
	},
	[]string{"channel", "outcome"}, // sent, failed, deduplicated, rate_limited
)

// DispatchDuration - длительность доставки по каналу (с retry)
var DispatchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "alertd",
		Subsystem: "dispatch",
		Name:      "dispatch_duration_seconds",
		Help:      "Duration of one channel dispatch including retries",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"channel"},
)

// QuietHoursDrops - события, полностью подавленные тихими часами
var QuietHoursDrops = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "alertd",
		Subsystem: "dispatch",
		Name:      "quiet_hours_drops_total",
		Help:      "Total number of events dropped entirely by quiet hours gating",
	},
)

// ProviderCallbacks - колбэки провайдеров по итогу
var ProviderCallbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "alertd",
		Subsystem: "dispatch",
		Name:      "provider_callbacks_total",
		Help:      "Total number of provider delivery callbacks processed",
	},
	[]string{"kind", "outcome"}, // delivered/read/clicked, applied/unknown
)
