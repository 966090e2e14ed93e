package http

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/freekieb7/wicket/http"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	requestCnt      metric.Int64Counter
	abuseCnt        metric.Int64Counter
	activeConnCnt   metric.Int64UpDownCounter
	requestDuration metric.Float64Histogram
)

func init() {
	var err error
	requestCnt, err = meter.Int64Counter("wicket.requests",
		metric.WithDescription("Requests answered, by status code"),
		metric.WithUnit("{request}"))
	if err != nil {
		panic(err)
	}

	abuseCnt, err = meter.Int64Counter("wicket.abuse.reports",
		metric.WithDescription("Peers reported to the abuse sink, by classification"),
		metric.WithUnit("{report}"))
	if err != nil {
		panic(err)
	}

	activeConnCnt, err = meter.Int64UpDownCounter("wicket.connections.active",
		metric.WithDescription("Connections currently being served"),
		metric.WithUnit("{connection}"))
	if err != nil {
		panic(err)
	}

	requestDuration, err = meter.Float64Histogram("wicket.request.duration",
		metric.WithDescription("Time from start line to flushed response"),
		metric.WithUnit("ms"))
	if err != nil {
		panic(err)
	}
}
