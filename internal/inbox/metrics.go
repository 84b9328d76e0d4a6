package inbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xaenox/hitome/internal/models"
)

var (
	inboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hitome",
		Subsystem: "inbox",
		Name:      "inbound_total",
		Help:      "Inbound messages and reviews broken down by channel and result.",
	}, []string{"channel", "result"})

	autoReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hitome",
		Subsystem: "inbox",
		Name:      "auto_replies_total",
		Help:      "Automatic replies broken down by channel and outcome.",
	}, []string{"channel", "result"})

	reviewAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hitome",
		Subsystem: "inbox",
		Name:      "review_alerts_total",
		Help:      "Threads that landed in review broken down by channel and notification outcome.",
	}, []string{"channel", "result"})
)

func recordInbound(channel models.Channel, result string) {
	inboundMessages.WithLabelValues(string(channel), result).Inc()
}

func recordAutoReply(channel models.Channel, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	autoReplies.WithLabelValues(string(channel), result).Inc()
}

func recordAlert(channel models.Channel, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	reviewAlerts.WithLabelValues(string(channel), result).Inc()
}
