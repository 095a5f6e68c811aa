package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmbedsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "widget_embeds_served_total",
		Help: "embed.js responses by status code.",
	}, []string{"status"})

	LeadsCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "widget_leads_captured_total",
		Help: "Visitor profiles stored through the lead endpoint.",
	})

	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "widget_messages_total",
		Help: "Messages stored, by sender type.",
	}, []string{"sender_type"})

	PollsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "widget_polls_served_total",
		Help: "Message poll requests answered.",
	})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "widget_notification_failures_total",
		Help: "Tenant notifications that could not be delivered.",
	})
)
