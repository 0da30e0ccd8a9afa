package license

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the derived license state. It is never persisted; every query
// re-derives it from the record plus live inputs.
type Status string

const (
	StatusInvalid         Status = "invalid"
	StatusTrialActive     Status = "trial_active"
	StatusTrialExpired    Status = "trial_expired"
	StatusActivated       Status = "activated"
	StatusMachineMismatch Status = "machine_mismatch"
	StatusClockTampered   Status = "clock_tampered"
)

const (
	// TrialDays is the trial window length from first run.
	TrialDays = 15

	trialDuration = TrialDays * 24 * time.Hour

	// clockRollbackTolerance is the allowed local clock slack behind the
	// last recorded run before rollback is flagged.
	clockRollbackTolerance = 5 * time.Minute

	// remoteCheckTolerance is the allowed slack behind a cached remote
	// time sample.
	remoteCheckTolerance = 10 * time.Minute

	// runWriteInterval coalesces lastRunDate writes across rapid
	// restarts.
	runWriteInterval = time.Minute

	// remoteFetchInterval bounds how often the background remote time
	// fetch is attempted.
	remoteFetchInterval = time.Hour
)

// UnlimitedDays is the GetRemainingTrialDays sentinel for an activated
// license.
const UnlimitedDays = -1

// restrictedFeatures are the mutating POS operations gated once the trial
// lapses. Lookup is case-insensitive; any feature not listed here is
// always allowed.
var restrictedFeatures = map[string]struct{}{
	"createorder":     {},
	"editorder":       {},
	"cancelorder":     {},
	"addproduct":      {},
	"editproduct":     {},
	"deleteproduct":   {},
	"addcategory":     {},
	"editcategory":    {},
	"deletecategory":  {},
	"addcustomer":     {},
	"editcustomer":    {},
	"deletecustomer":  {},
	"managediscounts": {},
}

// SignatureProvider yields the live machine signature.
// security.FingerprintService is the production implementation.
type SignatureProvider interface {
	GetMachineSignature() (string, error)
}

// Service owns the license state machine: trial lifecycle, feature
// gating, activation, and tamper detection.
//
// HTTP handlers and the feature gate middleware call into the service
// from concurrent request goroutines, so mu guards the record state.
// The remote time sample is shared with the background fetch goroutine
// and is held in atomics.
type Service struct {
	storage     *SecureStorage
	fingerprint SignatureProvider
	remote      *remoteTimeSource
	metrics     *Metrics
	audit       *AuditWriter
	logger      *slog.Logger

	// now is the clock source, replaceable in tests.
	now func() time.Time

	mu             sync.Mutex
	record         *LicenseRecord
	recordLoaded   bool
	freshlyCreated bool

	// remoteSampleNanos holds the cached remote UTC sample (0 = none).
	remoteSampleNanos  atomic.Int64
	remoteFetchedNanos atomic.Int64
	remoteInFlight     atomic.Bool
}

// ServiceOptions configures optional collaborators.
type ServiceOptions struct {
	RemoteTimeURL string
	RemoteTimeout time.Duration
	Metrics       *Metrics
	Audit         *AuditWriter
	Logger        *slog.Logger
}

// NewService creates the license service. The service loads the record
// lazily on first use.
func NewService(storage *SecureStorage, fingerprint SignatureProvider, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var remote *remoteTimeSource
	if opts.RemoteTimeURL != "" {
		timeout := opts.RemoteTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		remote = newRemoteTimeSource(opts.RemoteTimeURL, timeout)
	}

	return &Service{
		storage:     storage,
		fingerprint: fingerprint,
		remote:      remote,
		metrics:     opts.Metrics,
		audit:       opts.Audit,
		logger:      logger.With(slog.String("component", "license_service")),
		now:         time.Now,
	}
}

// InitializeTrial creates the license record on first run. Idempotent: a
// valid existing record makes it a no-op. A freshly created record has no
// prior lastRunDate, so the local rollback check is suppressed for the
// remainder of this process.
func (s *Service) InitializeTrial() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeTrial()
}

// initializeTrial is the locked body of InitializeTrial. Caller holds mu.
func (s *Service) initializeTrial() error {
	if rec := s.loadRecord(); rec != nil {
		return nil
	}

	signature, err := s.fingerprint.GetMachineSignature()
	if err != nil {
		return fmt.Errorf("failed to read machine signature: %w", err)
	}

	now := s.now().UTC()
	record := &LicenseRecord{
		TrialStartDate:   now,
		LastRunDate:      now,
		MachineSignature: signature,
		IsActivated:      false,
	}

	if err := s.storage.SaveLicenseInfo(record); err != nil {
		return fmt.Errorf("failed to persist trial record: %w", err)
	}

	s.record = record
	s.recordLoaded = true
	s.freshlyCreated = true

	s.logger.Info("trial initialized",
		slog.Time("trial_start", now),
		slog.Int("trial_days", TrialDays),
	)
	s.audit.Record("trial_initialized", string(StatusTrialActive), "", signature)

	return nil
}

// RecordAppRun advances lastRunDate on a qualifying app run. Writes are
// coalesced: nothing is persisted unless more than a minute has elapsed
// since the last recorded run. Also opportunistically refreshes the
// remote time sample in the background.
func (s *Service) RecordAppRun() {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.loadRecord()
	if record == nil {
		if err := s.initializeTrial(); err != nil {
			s.logger.Error("first-run trial initialization failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}

	now := s.now().UTC()
	if now.Sub(record.LastRunDate) > runWriteInterval {
		record.LastRunDate = now
		if err := s.storage.SaveLicenseInfo(record); err != nil {
			s.logger.Warn("failed to persist app run",
				slog.String("error", err.Error()),
			)
		}
	}

	s.maybeRefreshRemoteTime()
}

// GetLicenseStatus derives the current state. Pure with respect to the
// record: it never mutates or persists anything.
func (s *Service) GetLicenseStatus() Status {
	s.mu.Lock()
	status := s.deriveStatus()
	s.mu.Unlock()

	s.metrics.recordStatusCheck(context.Background(), status)
	return status
}

// deriveStatus computes the state. Caller holds mu.
func (s *Service) deriveStatus() Status {
	record := s.loadRecord()
	if record == nil {
		return StatusInvalid
	}

	signature, err := s.fingerprint.GetMachineSignature()
	if err != nil || record.MachineSignature != signature {
		// Activation does not bypass the hardware binding check.
		return StatusMachineMismatch
	}

	if record.IsActivated {
		return StatusActivated
	}

	now := s.now().UTC()

	if !s.freshlyCreated && now.Before(record.LastRunDate.Add(-clockRollbackTolerance)) {
		s.logger.Warn("local clock rollback detected",
			slog.Time("last_run", record.LastRunDate),
			slog.Time("now", now),
		)
		return StatusClockTampered
	}

	if sample := s.remoteSample(); !sample.IsZero() && now.Before(sample.Add(-remoteCheckTolerance)) {
		s.logger.Warn("clock behind remote time sample",
			slog.Time("remote", sample),
			slog.Time("now", now),
		)
		return StatusClockTampered
	}

	if now.After(record.TrialStartDate.Add(trialDuration)) {
		return StatusTrialExpired
	}

	return StatusTrialActive
}

// GetRemainingTrialDays returns whole days left in the trial window,
// UnlimitedDays (-1) when activated, and 0 when expired or unusable.
func (s *Service) GetRemainingTrialDays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingTrialDays()
}

// remainingTrialDays is the locked body of GetRemainingTrialDays.
// Caller holds mu.
func (s *Service) remainingTrialDays() int {
	switch s.deriveStatus() {
	case StatusActivated:
		return UnlimitedDays
	case StatusTrialActive:
		record := s.loadRecord()
		remaining := record.TrialStartDate.Add(trialDuration).Sub(s.now().UTC())
		days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
		if days < 0 {
			return 0
		}
		return days
	default:
		return 0
	}
}

// IsFeatureAllowed reports whether the named feature may run under the
// current license state. Read-only features stay available after expiry.
func (s *Service) IsFeatureAllowed(featureName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.deriveStatus() {
	case StatusActivated, StatusTrialActive:
		return true
	default:
		_, restricted := restrictedFeatures[strings.ToLower(featureName)]
		return !restricted
	}
}

// ActivateLicense validates the key format and its machine binding, then
// marks the record activated. Returns false for any malformed or
// wrong-machine key; isActivated is never left changed on failure.
func (s *Service) ActivateLicense(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	normalized := NormalizeKey(key)

	signature, err := s.fingerprint.GetMachineSignature()
	if err != nil {
		s.logger.Error("activation aborted: machine signature unavailable",
			slog.String("error", err.Error()),
		)
		s.metrics.recordActivation(ctx, false)
		return false
	}

	if err := VerifyKeyBinding(normalized, signature); err != nil {
		s.logger.Warn("activation rejected",
			slog.String("key", MaskKey(normalized)),
			slog.String("reason", err.Error()),
		)
		s.metrics.recordActivation(ctx, false)
		s.audit.Record("activation_rejected", string(s.deriveStatus()), err.Error(), signature)
		return false
	}

	record := s.loadRecord()
	if record == nil {
		if err := s.initializeTrial(); err != nil {
			s.metrics.recordActivation(ctx, false)
			return false
		}
		record = s.record
	}

	wasActivated := record.IsActivated
	priorRun := record.LastRunDate
	record.IsActivated = true
	record.LastRunDate = s.now().UTC()

	if err := s.storage.SaveLicenseInfo(record); err != nil {
		s.logger.Error("failed to persist activation",
			slog.String("error", err.Error()),
		)
		record.IsActivated = wasActivated
		record.LastRunDate = priorRun
		s.metrics.recordActivation(ctx, false)
		return false
	}

	s.logger.Info("license activated", slog.String("key", MaskKey(normalized)))
	s.metrics.recordActivation(ctx, true)
	s.audit.Record("activated", string(StatusActivated), MaskKey(normalized), signature)

	return true
}

// GetStatusMessage returns a human-readable summary for the UI banner.
func (s *Service) GetStatusMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch status := s.deriveStatus(); status {
	case StatusActivated:
		return "Licensed. All features are available."
	case StatusTrialActive:
		days := s.remainingTrialDays()
		if days == 1 {
			return "Trial active. 1 day remaining."
		}
		return fmt.Sprintf("Trial active. %d days remaining.", days)
	case StatusTrialExpired:
		return "Trial expired. Activate a license to continue using all features."
	case StatusMachineMismatch:
		return "This license belongs to a different machine. Contact support."
	case StatusClockTampered:
		return "System clock tampering was detected. Correct the clock and restart."
	default:
		return "No valid license found. A trial will start on next run."
	}
}

// ResetLicense wipes the record from both stores and the in-memory
// cache. Support and debug tooling only.
func (s *Service) ResetLicense() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storage.ClearLicenseData()
	s.record = nil
	s.recordLoaded = false
	s.freshlyCreated = false
	s.audit.Record("reset", string(StatusInvalid), "", "")
	s.logger.Info("license data cleared")
}

// MaskKey hides the middle groups of an activation key for logs.
func MaskKey(key string) string {
	if len(key) != 19 {
		return "****"
	}
	return key[:4] + "-****-****-" + key[15:]
}

// loadRecord returns the cached record, loading it from storage on
// first use. Caller holds mu.
func (s *Service) loadRecord() *LicenseRecord {
	if s.recordLoaded {
		return s.record
	}

	record, source := s.storage.LoadLicenseInfo()
	s.record = record
	s.recordLoaded = true

	if source == LoadRecoveredFromBackup {
		s.metrics.recordRecovery(context.Background())
		s.logger.Info("license record recovered from backup store")
	}

	return s.record
}

// remoteSample returns the cached remote time, zero when none is cached.
func (s *Service) remoteSample() time.Time {
	nanos := s.remoteSampleNanos.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// maybeRefreshRemoteTime dispatches a fire-and-forget remote time fetch
// when no sample has been cached within the last hour. Never awaited:
// startup must complete with no network.
func (s *Service) maybeRefreshRemoteTime() {
	if s.remote == nil {
		return
	}

	last := s.remoteFetchedNanos.Load()
	if last != 0 && s.now().Sub(time.Unix(0, last)) < remoteFetchInterval {
		return
	}

	if !s.remoteInFlight.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer s.remoteInFlight.Store(false)

		sample, err := s.remote.Fetch(context.Background())
		if err != nil {
			// Best effort: the cross-check is simply unavailable.
			s.logger.Debug("remote time fetch failed",
				slog.String("error", err.Error()),
			)
			s.metrics.recordRemoteTimeFetch(context.Background(), false)
			return
		}

		s.remoteSampleNanos.Store(sample.UnixNano())
		s.remoteFetchedNanos.Store(s.now().UnixNano())
		s.metrics.recordRemoteTimeFetch(context.Background(), true)

		s.logger.Debug("remote time sample cached", slog.Time("sample", sample))
	}()
}
