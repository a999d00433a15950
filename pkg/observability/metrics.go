package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscriptionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_transitions_total",
		Help: "Lifecycle events applied to subscriptions, by outcome",
	}, []string{
		"event",   // provider_activated, admin_cancel, grace_period_sweep, ...
		"from",    // status before the event
		"to",      // status after the event
		"outcome", // applied, noop, rejected
	})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_webhook_events_total",
		Help: "Inbound provider webhooks, by gateway, event kind and outcome",
	}, []string{"gateway", "event", "outcome"})

	gatewayCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subscription_gateway_call_duration_seconds",
		Help:    "Latency of payment provider API calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 45},
	}, []string{"gateway", "operation", "status"})

	provisioningDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_provisioning_deliveries_total",
		Help: "Provisioning notifications, by action and result",
	}, []string{"action", "result"})

	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_sweep_runs_total",
		Help: "Grace/period-end sweep runs, by result",
	}, []string{"result"})

	subscriptionsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subscriptions_by_status",
		Help: "Current subscription count per status, refreshed by the stats endpoint and sweeps",
	}, []string{"status"})

	checkoutCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_cache_lookups_total",
		Help: "Pending checkout lookups, by backend and result",
	}, []string{"backend", "result"}) // hit, miss, error

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})
)

// RecordCacheLookup counts a checkout cache read
func RecordCacheLookup(backend, result string) {
	checkoutCacheLookups.WithLabelValues(backend, result).Inc()
}

// RecordTransition counts a lifecycle event outcome
func RecordTransition(event, from, to, outcome string) {
	subscriptionTransitionsTotal.WithLabelValues(event, from, to, outcome).Inc()
}

// RecordWebhookEvent counts an inbound webhook
func RecordWebhookEvent(gateway, event, outcome string) {
	webhookEventsTotal.WithLabelValues(gateway, event, outcome).Inc()
}

// ObserveGatewayCall records the latency of one provider operation
func ObserveGatewayCall(gateway, operation string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	gatewayCallDuration.WithLabelValues(gateway, operation, status).Observe(time.Since(started).Seconds())
}

// RecordProvisioningDelivery counts a provisioning notification attempt
func RecordProvisioningDelivery(action, result string) {
	provisioningDeliveriesTotal.WithLabelValues(action, result).Inc()
}

// RecordSweepRun counts a sweep execution
func RecordSweepRun(result string) {
	sweepRunsTotal.WithLabelValues(result).Inc()
}

// SetStatusCount publishes the number of subscriptions in a status
func SetStatusCount(status string, n int64) {
	subscriptionsByStatus.WithLabelValues(status).Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetrics records request latency labelled by the route pattern returned
// from routeOf, which keeps path parameters out of label values
func HTTPMetrics(routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)
			httpRequestDuration.WithLabelValues(routeOf(r), strconv.Itoa(rec.code)).Observe(time.Since(start).Seconds())
		})
	}
}
