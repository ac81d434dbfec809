// Package telemetry is a thin wrapper around armon/go-metrics giving
// every package in this backend the same IncrCounter/MeasureSince call
// shape cosmos-sdk/telemetry offers, without pulling in the rest of a
// cosmos-sdk application's telemetry stack.
package telemetry

import (
	"time"

	gometrics "github.com/armon/go-metrics"
)

var enabled bool

// Init installs a global in-memory metrics sink. Call once at startup;
// before Init, IncrCounter/MeasureSince are no-ops.
func Init(serviceName string) error {
	cfg := gometrics.DefaultConfig(serviceName)
	cfg.EnableHostname = false
	sink := gometrics.NewInmemSink(10*time.Second, time.Minute)
	if _, err := gometrics.NewGlobal(cfg, sink); err != nil {
		return err
	}
	enabled = true
	return nil
}

// IncrCounter increments a named counter by val, matching
// cosmos-sdk/telemetry's `telemetry.IncrCounter(1, "failure", "tick")`
// call shape.
func IncrCounter(val float32, keys ...string) {
	if !enabled {
		return
	}
	gometrics.IncrCounterWithLabels(keys, val, nil)
}

// MeasureSince records the elapsed duration since start under the given
// key path, mirroring `telemetry.MeasureSince(startTime, "runtime", "tick")`.
func MeasureSince(start time.Time, keys ...string) {
	if !enabled {
		return
	}
	gometrics.MeasureSinceWithLabels(keys, start, nil)
}
