package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cheqr_scans_total",
	Help: "Scan validation outcomes by result.",
}, []string{"outcome"})

func observe(reason Reason) {
	scansTotal.WithLabelValues(string(reason)).Inc()
}

func observeAccept() {
	scansTotal.WithLabelValues("accepted").Inc()
}
