package task

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var batchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_batch_runs_total",
	Help: "Monthly invoice batch runs by outcome.",
}, []string{"outcome"})
