package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgraph_web_requests_total",
		Help: "API requests served, by route and status code",
	}, []string{"route", "code"})

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tgraph_web_ws_clients",
		Help: "Connected websocket clients",
	})

	refreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tgraph_web_refresh_events_total",
		Help: "Refresh events broadcast after a rebuild",
	})
)
