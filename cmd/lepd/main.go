// Command lepd is the Linux host-introspection daemon: it binds a TCP
// port, registers the standard procedure catalogue, and serves
// JSON-RPC 2.0 requests for telemetry probes until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/lepdaemon/lepd/internal/config"
	"github.com/lepdaemon/lepd/internal/events"
	"github.com/lepdaemon/lepd/internal/otel"
	"github.com/lepdaemon/lepd/internal/registry"
	"github.com/lepdaemon/lepd/internal/server"
)

func main() {
	port := flag.Int("port", config.DefaultPort, "TCP port to listen on (0 picks an ephemeral port)")
	workers := flag.Int("workers", config.DefaultWorkerCount, "number of worker event loops")
	debug := flag.Int("debug", envDebugDefault(), "debug level: 0=silent, 1=method names, 2=full request/response dumps")
	metricsExporter := flag.String("metrics-exporter", "none", "metrics exporter: none, stdout, otlp-grpc, otlp-http")
	traceExporter := flag.String("trace-exporter", "none", "trace exporter: none, stdout, otlp-grpc, otlp-http")
	otlpEndpoint := flag.String("otlp-endpoint", "", "OTLP endpoint for otlp-grpc/otlp-http exporters")
	flag.Parse()

	// Debug level 0 leaves the no-op event logger in place; 1 and above
	// write the structured event log, method names included.
	if *debug >= int(config.DebugMethod) {
		events.SetGlobalEventLogger(events.NewEventLogger("dispatcher", ""))
	}

	ctx := context.Background()

	metricsCfg := &otel.MetricsConfig{
		Enabled:      *metricsExporter != "none",
		ServiceName:  "lepd",
		ExporterType: otel.ExporterType(*metricsExporter),
		OTLPEndpoint: *otlpEndpoint,
		OTLPInsecure: true,
	}
	m, err := otel.NewMetrics(ctx, metricsCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize metrics: %v\n", err)
		os.Exit(1)
	}
	otel.SetGlobalMetrics(m)

	tracerCfg := &otel.Config{
		Enabled:      *traceExporter != "none",
		ServiceName:  "lepd",
		ExporterType: otel.ExporterType(*traceExporter),
		OTLPEndpoint: *otlpEndpoint,
		OTLPInsecure: true,
		SampleRate:   1.0,
	}
	tr, err := otel.NewTracer(ctx, tracerCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize tracer: %v\n", err)
		os.Exit(1)
	}
	otel.SetGlobalTracer(tr)

	reg, err := registry.StandardCatalogue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build procedure catalogue: %v\n", err)
		os.Exit(1)
	}
	for _, name := range reg.List() {
		proc, _ := reg.Lookup(name)
		events.GetGlobalEventLogger().LogProcedureRegistered(name, proc.Kind.String())
	}

	srv, err := server.Init(server.Config{
		Port:        *port,
		WorkerCount: *workers,
		Debug:       config.DebugLevel(*debug),
	}, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind listener: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("lepd listening on port %d with %d workers (debug=%d)\n", srv.Port(), *workers, *debug)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() {
		runErr <- srv.Run()
	}()

	select {
	case <-sigChan:
		fmt.Println("\nshutting down...")
		srv.Stop()
		<-runErr
	case err := <-runErr:
		if err != nil {
			slog.Error("accept loop exited", "error", err)
		}
	}

	srv.Destroy()

	shutdownCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics shutdown failed", "error", err)
	}
	if err := tr.Shutdown(shutdownCtx); err != nil {
		slog.Error("tracer shutdown failed", "error", err)
	}

	fmt.Println("lepd stopped")
}

// envDebugDefault reads JRPC_DEBUG for the -debug flag's default. An
// explicit -debug flag still overrides it.
func envDebugDefault() int {
	v := os.Getenv("JRPC_DEBUG")
	if v == "" {
		return int(config.DebugSilent)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return int(config.DebugSilent)
	}
	return n
}
