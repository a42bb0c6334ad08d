package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// NewServer exposes /metrics and a /live probe.
func NewServer(gatherer prometheus.Gatherer) *fasthttp.Server {
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(Handler(gatherer))

	return &fasthttp.Server{
		Name: "OffloadEngine",
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/metrics":
				metricsHandler(ctx)
			case "/live":
				ctx.SetContentType("application/json")
				ctx.SetBodyString(`{"status":"up"}`)
			default:
				ctx.Error("not found", fasthttp.StatusNotFound)
			}
		},
	}
}
