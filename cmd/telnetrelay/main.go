package main

import (
	"flag"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/corvidlabs/gotelnet/telnet/metrics"
)

var (
	addr       = flag.String("addr", getEnvDefault("GOTELNET_ADDR", ":4001"), "address on which to listen")
	metricAddr = flag.String("metrics-addr", getEnvDefault("GOTELNET_METRICS_ADDR", ":9101"), "address on which to serve Prometheus metrics")
	password   = flag.String("password", getEnvDefault("GOTELNET_PASSWORD", "changeme"), "password the downstream login command must supply")
)

var logger = zerolog.New(os.Stdout)

func main() {
	flag.Parse()

	mtx := metrics.NewCollector(nil)
	go serveMetrics()

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Send()
	}
	defer l.Close()

	logger.Info().Str("addr", *addr).Msg("started")

	for {
		conn, err := l.Accept()
		if err != nil {
			logger.Error().Err(err).Msg("error accepting connection")
			continue
		}
		go func() {
			session := newDownstreamSession(conn, mtx)
			defer session.Close()
			session.runForever(mtx)
		}()
	}
}

func serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(*metricAddr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server exited")
	}
}

func getEnvDefault(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return defaultValue
}
