// Package metrics exports workspace gauges and serves /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/PaulBabatuyi/streams/internal/data"
)

var (
	usersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streams",
		Subsystem: "workspace",
		Name:      "users",
		Help:      "Registered users by state",
	}, []string{"state"})

	channelsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streams",
		Subsystem: "workspace",
		Name:      "channels",
		Help:      "Channels in the workspace",
	})

	dmsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streams",
		Subsystem: "workspace",
		Name:      "dms",
		Help:      "DMs in the workspace",
	})

	messagesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streams",
		Subsystem: "workspace",
		Name:      "messages",
		Help:      "Messages by state: visible, or pending delivery",
	}, []string{"state"})

	standupsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streams",
		Subsystem: "workspace",
		Name:      "active_standups",
		Help:      "Channels with a standup running",
	})
)

// Observe sets the workspace gauges from st. It is installed as the store's
// commit hook, so it runs under the store lock after every committed change.
func Observe(st *data.State) {
	active, removed := 0, 0
	for _, u := range st.Users {
		if u.Removed {
			removed++
		} else {
			active++
		}
	}
	usersGauge.WithLabelValues("active").Set(float64(active))
	usersGauge.WithLabelValues("removed").Set(float64(removed))

	standups := 0
	for _, c := range st.Channels {
		if c.Standup.IsActive {
			standups++
		}
	}
	channelsGauge.Set(float64(len(st.Channels)))
	standupsGauge.Set(float64(standups))
	dmsGauge.Set(float64(len(st.DMs)))
	messagesGauge.WithLabelValues("visible").Set(float64(len(st.Messages)))
	messagesGauge.WithLabelValues("pending").Set(float64(len(st.Pending)))
}
