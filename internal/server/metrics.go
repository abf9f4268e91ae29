// Package server exposes relay counters in the Prometheus exposition format.
package server

import (
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/Tyrowin/georelay/internal/relay"
)

// StatsSource reports the relay's event counters.
type StatsSource interface {
	Stats() relay.Stats
}

// MetricsHandler serves the connection gauge and the relay's counters,
// encoded in whichever exposition format the scraper negotiates.
func MetricsHandler(hub *Hub, stats StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := stats.Stats()
		families := []*dto.MetricFamily{
			metricFamily("georelay_connections", "Number of live WebSocket connections.",
				dto.MetricType_GAUGE, float64(hub.Count())),
			metricFamily("georelay_location_updates_total", "Location updates relayed to clients.",
				dto.MetricType_COUNTER, float64(s.LocationUpdates)),
			metricFamily("georelay_disconnects_total", "Disconnect notices relayed to clients.",
				dto.MetricType_COUNTER, float64(s.Disconnects)),
		}

		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))

		enc := expfmt.NewEncoder(w, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				slog.Warn("metrics: encode failed", "metric", mf.GetName(), "error", err)
				return
			}
		}
		if closer, ok := enc.(expfmt.Closer); ok {
			if err := closer.Close(); err != nil {
				slog.Warn("metrics: close encoder", "error", err)
			}
		}
	}
}

func metricFamily(name, help string, typ dto.MetricType, value float64) *dto.MetricFamily {
	m := &dto.Metric{}
	switch typ {
	case dto.MetricType_COUNTER:
		m.Counter = &dto.Counter{Value: &value}
	default:
		m.Gauge = &dto.Gauge{Value: &value}
	}

	return &dto.MetricFamily{
		Name:   &name,
		Help:   &help,
		Type:   typ.Enum(),
		Metric: []*dto.Metric{m},
	}
}
