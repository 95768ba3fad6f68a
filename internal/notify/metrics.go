package notify

import "github.com/prometheus/client_golang/prometheus"

const (
	channelRealtime = "ws"
	channelTelegram = "telegram"
	channelNone     = "none"

	kindRefresh = "refresh"
	kindNotify  = "notify"

	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeDropped = "dropped"
)

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications handled by the dispatcher",
	},
	[]string{"channel", "kind", "outcome"},
)

func init() {
	prometheus.MustRegister(notificationsTotal)
}

func count(channel, kind, outcome string) {
	notificationsTotal.WithLabelValues(channel, kind, outcome).Inc()
}
