package license

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one append-only license lifecycle event.
type AuditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Signature string    `json:"machine_signature,omitempty"`
}

// AuditWriter appends license events as JSON lines to a local file.
// Write failures are logged and swallowed; auditing must never block or
// fail a license operation.
type AuditWriter struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewAuditWriter creates an audit writer targeting the given file path.
// An empty path disables auditing.
func NewAuditWriter(path string, logger *slog.Logger) *AuditWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditWriter{
		path:   path,
		logger: logger.With(slog.String("component", "license_audit")),
	}
}

// Record appends one event. The machine signature is masked to its first
// eight characters; the audit file is diagnostics, not a secret store.
func (w *AuditWriter) Record(action, status, detail, machineSignature string) {
	if w == nil || w.path == "" {
		return
	}

	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Status:    status,
		Detail:    detail,
		Signature: maskSignature(machineSignature),
	}

	line, err := json.Marshal(entry)
	if err != nil {
		w.logger.Warn("audit entry marshal failed", slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		w.logger.Warn("audit file open failed", slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		w.logger.Warn("audit file write failed", slog.String("error", err.Error()))
	}
}

func maskSignature(sig string) string {
	if len(sig) <= 8 {
		return sig
	}
	return sig[:8] + "..."
}
