// Package logging provides structured logging for wdpool.
//
// This package wraps Go's log/slog to provide JSON-formatted logs. Pool,
// driver and process components take a *Logger through their options and
// derive child loggers carrying the bridge, driver and session they act on,
// so a single log file can be filtered per driver process after the fact.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/tmp/wdpool/wdpool.log", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	driverLogger := logger.WithBridge("chrome").WithDriver(id)
//	driverLogger.Info("driver ready", "endpoint", endpoint)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"driver ready","bridge":"chrome","driver_id":"...","endpoint":"localhost:9515"}
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on emitted entries.
package logging
