// metrics — Prometheus-метрики клиента: вызовы API и обновления токена.
package metrics

import (
	"context"
	"strconv"

	"github.com/pribylovaa/go-cheffrey-client/internal/apiclient"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cheffrey_client"

// Metrics — набор коллекторов, зарегистрированных в одном Registerer.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	refresh  *prometheus.CounterVec
	listSize prometheus.Gauge
}

// New регистрирует коллекторы в reg. reg == nil — DefaultRegisterer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "API calls by method and outcome.",
		}, []string{"method", "outcome", "retried"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}),
		listSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recipe_list_size",
			Help:      "Recipes in the to-cook list, as last seen by watch.",
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.refresh, m.listSize} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ResponseTransform учитывает каждый ответ. outcome — Problem.String().
func (m *Metrics) ResponseTransform() apiclient.ResponseTransform {
	return func(_ context.Context, resp *apiclient.Response) *apiclient.Response {
		method, retried := "UNKNOWN", false
		if resp.Request != nil {
			method, retried = resp.Request.Method, resp.Request.Retried
		}

		m.requests.WithLabelValues(method, resp.Problem.String(), strconv.FormatBool(retried)).Inc()
		m.duration.WithLabelValues(method).Observe(resp.Duration.Seconds())

		return nil
	}
}

// ObserveRefresh — наблюдатель для auth.WithRefreshObserver.
func (m *Metrics) ObserveRefresh(result string) {
	m.refresh.WithLabelValues(result).Inc()
}

// SetRecipeListSize — наблюдатель для watch.New.
func (m *Metrics) SetRecipeListSize(n int) {
	m.listSize.Set(float64(n))
}
