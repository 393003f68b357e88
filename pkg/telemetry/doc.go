// Package telemetry provides the observability stack for apt.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and an in-process event publisher into a single
// Telemetry value that travels in the context:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	ctx = tel.WithContext(ctx)
//
// Catalog calls and session operations wrap themselves in an
// InstrumentedContext:
//
//	op := telemetry.StartOperation(ctx, "alation.get_folders")
//	defer op.End(err)
//	op.Logger.Info("Fetching folders")
//
// The event publisher carries session activity (refetches, selections,
// generated schemas) to subscribers such as the activity store and the
// terminal UI. Delivery order matches publish order.
//
// Metrics are collected in a private registry and are only served over
// HTTP when MetricsConfig.ListenAddress is set.
package telemetry
