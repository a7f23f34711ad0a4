package invoice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invoicesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_invoices_created_total",
		Help: "Platform invoices created.",
	})

	invoicesPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_invoices_paid_total",
		Help: "Platform invoices transitioned to paid.",
	})

	gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_gate_decisions_total",
		Help: "Delinquency gate evaluations by outcome.",
	}, []string{"outcome"})
)
