package license

import (
	"fmt"
	"time"

	"poscli/internal/security"
)

// LicenseRecord is the single persisted unit of truth for trial and
// activation state. TrialStartDate and MachineSignature are set once at
// creation and never mutated; IsActivated transitions false->true only.
type LicenseRecord struct {
	TrialStartDate   time.Time `json:"trial_start_date"`
	LastRunDate      time.Time `json:"last_run_date"`
	MachineSignature string    `json:"machine_signature"`
	IsActivated      bool      `json:"is_activated"`
	DataHash         string    `json:"data_hash"`
}

// canonicalString is the serialization the data hash is computed over.
// It covers every content field except the hash itself; any change to the
// format invalidates all previously persisted records.
func (r *LicenseRecord) canonicalString() string {
	return fmt.Sprintf("%s|%s|%s|%t",
		r.TrialStartDate.UTC().Format(time.RFC3339Nano),
		r.LastRunDate.UTC().Format(time.RFC3339Nano),
		r.MachineSignature,
		r.IsActivated,
	)
}

// Seal recomputes the data hash over the content fields.
func (r *LicenseRecord) Seal(crypto *security.CryptoHelper) {
	r.DataHash = crypto.ComputeHash(r.canonicalString())
}

// VerifyIntegrity checks the stored hash against the content fields.
func (r *LicenseRecord) VerifyIntegrity(crypto *security.CryptoHelper) bool {
	if r.DataHash == "" {
		return false
	}
	return crypto.VerifyHash(r.canonicalString(), r.DataHash)
}

// Clone returns a copy so callers can stage mutations before persisting.
func (r *LicenseRecord) Clone() *LicenseRecord {
	clone := *r
	return &clone
}
