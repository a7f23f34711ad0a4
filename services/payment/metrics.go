package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var webhookNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_webhook_notifications_total",
	Help: "PIX webhook deliveries by outcome.",
}, []string{"outcome"})
