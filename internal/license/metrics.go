package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry instruments for license operations. A nil
// *Metrics is valid and records nothing, so tests and tools can run
// without a meter provider.
type Metrics struct {
	StatusChecks       metric.Int64Counter
	ActivationAttempts metric.Int64Counter
	StorageRecoveries  metric.Int64Counter
	TamperDetections   metric.Int64Counter
	RemoteTimeFetches  metric.Int64Counter
}

// NewMetrics registers the license instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	statusChecks, err := meter.Int64Counter("license_status_checks_total",
		metric.WithDescription("License status derivations by resulting state"))
	if err != nil {
		return nil, fmt.Errorf("failed to create status check counter: %w", err)
	}

	activationAttempts, err := meter.Int64Counter("license_activation_attempts_total",
		metric.WithDescription("License activation attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create activation counter: %w", err)
	}

	storageRecoveries, err := meter.Int64Counter("license_storage_recoveries_total",
		metric.WithDescription("License records recovered from the backup store"))
	if err != nil {
		return nil, fmt.Errorf("failed to create recovery counter: %w", err)
	}

	tamperDetections, err := meter.Int64Counter("license_tamper_detections_total",
		metric.WithDescription("Clock tampering and machine mismatch detections"))
	if err != nil {
		return nil, fmt.Errorf("failed to create tamper counter: %w", err)
	}

	remoteTimeFetches, err := meter.Int64Counter("license_remote_time_fetches_total",
		metric.WithDescription("Remote time cross-check fetches by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create remote time counter: %w", err)
	}

	return &Metrics{
		StatusChecks:       statusChecks,
		ActivationAttempts: activationAttempts,
		StorageRecoveries:  storageRecoveries,
		TamperDetections:   tamperDetections,
		RemoteTimeFetches:  remoteTimeFetches,
	}, nil
}

func (m *Metrics) recordStatusCheck(ctx context.Context, status Status) {
	if m == nil {
		return
	}
	m.StatusChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	if status == StatusClockTampered || status == StatusMachineMismatch {
		m.TamperDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(status))))
	}
}

func (m *Metrics) recordActivation(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.ActivationAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func (m *Metrics) recordRecovery(ctx context.Context) {
	if m == nil {
		return
	}
	m.StorageRecoveries.Add(ctx, 1)
}

func (m *Metrics) recordRemoteTimeFetch(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.RemoteTimeFetches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
