package license

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"poscli/internal/security"
)

// LoadSource tags where a loaded record came from, so the self-healing
// branch is visible to callers and tests.
type LoadSource int

const (
	LoadAbsent LoadSource = iota
	LoadPrimary
	LoadRecoveredFromBackup
)

// String returns a human-readable source name
func (s LoadSource) String() string {
	switch s {
	case LoadPrimary:
		return "primary"
	case LoadRecoveredFromBackup:
		return "recovered_from_backup"
	default:
		return "absent"
	}
}

// storageBackend is one of the two independent blob stores.
type storageBackend interface {
	Name() string
	Read() (string, error)
	Write(blob string) error
	Clear() error
}

var errBackendEmpty = errors.New("backend holds no license data")

// keyringBackend stores the blob in the platform per-user secure store.
type keyringBackend struct {
	service string
	user    string
}

func (k *keyringBackend) Name() string { return "keyring" }

func (k *keyringBackend) Read() (string, error) {
	blob, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", errBackendEmpty
	}
	if err != nil {
		return "", fmt.Errorf("keyring read failed: %w", err)
	}
	return blob, nil
}

func (k *keyringBackend) Write(blob string) error {
	if err := keyring.Set(k.service, k.user, blob); err != nil {
		return fmt.Errorf("keyring write failed: %w", err)
	}
	return nil
}

func (k *keyringBackend) Clear() error {
	err := keyring.Delete(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// fileBackend stores the blob in a hidden dot-file under the application
// data directory.
type fileBackend struct {
	path string
}

func (f *fileBackend) Name() string { return "backup_file" }

func (f *fileBackend) Read() (string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", errBackendEmpty
	}
	if err != nil {
		return "", fmt.Errorf("backup file read failed: %w", err)
	}
	if len(data) == 0 {
		return "", errBackendEmpty
	}
	return string(data), nil
}

func (f *fileBackend) Write(blob string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("backup dir create failed: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(blob), 0600); err != nil {
		return fmt.Errorf("backup file write failed: %w", err)
	}
	return nil
}

func (f *fileBackend) Clear() error {
	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// SecureStorage persists the encrypted, integrity-checked license record
// to two independent backends and reconciles them on read.
type SecureStorage struct {
	crypto  *security.CryptoHelper
	primary storageBackend
	backup  storageBackend
	logger  *slog.Logger
}

// StorageOptions configures the default backend locations.
type StorageOptions struct {
	KeyringService string
	KeyringUser    string
	BackupFilePath string
}

// NewSecureStorage creates storage over the OS keyring (primary) and a
// hidden backup file (secondary).
func NewSecureStorage(crypto *security.CryptoHelper, opts StorageOptions, logger *slog.Logger) *SecureStorage {
	return newSecureStorageWithBackends(crypto,
		&keyringBackend{service: opts.KeyringService, user: opts.KeyringUser},
		&fileBackend{path: opts.BackupFilePath},
		logger,
	)
}

// NewFileSecureStorage creates storage backed by two independent files.
// Used on platforms where no per-user keyring is available, and by tests.
func NewFileSecureStorage(crypto *security.CryptoHelper, primaryPath, backupPath string, logger *slog.Logger) *SecureStorage {
	return newSecureStorageWithBackends(crypto,
		&fileBackend{path: primaryPath},
		&fileBackend{path: backupPath},
		logger,
	)
}

func newSecureStorageWithBackends(crypto *security.CryptoHelper, primary, backup storageBackend, logger *slog.Logger) *SecureStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecureStorage{
		crypto:  crypto,
		primary: primary,
		backup:  backup,
		logger:  logger.With(slog.String("component", "secure_storage")),
	}
}

// SaveLicenseInfo seals, encrypts, and writes the record to both
// backends. A single backend failing does not prevent the other write;
// an error is returned only when neither backend accepted the blob.
func (s *SecureStorage) SaveLicenseInfo(record *LicenseRecord) error {
	record.Seal(s.crypto)

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize license record: %w", err)
	}

	blob, err := s.crypto.Encrypt(string(payload))
	if err != nil {
		return fmt.Errorf("failed to encrypt license record: %w", err)
	}

	var lastErr error
	saved := 0
	for _, backend := range []storageBackend{s.primary, s.backup} {
		if err := backend.Write(blob); err != nil {
			s.logger.Warn("license save failed on backend",
				slog.String("backend", backend.Name()),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		saved++
	}

	if saved == 0 {
		return fmt.Errorf("license record could not be saved to any backend: %w", lastErr)
	}
	return nil
}

// LoadLicenseInfo loads the record, preferring the primary backend and
// falling back to the backup. A record recovered from the backup is
// immediately re-saved to the primary, healing the two stores into
// agreement. Records failing decryption or hash verification are treated
// as absent.
func (s *SecureStorage) LoadLicenseInfo() (*LicenseRecord, LoadSource) {
	if record := s.loadFromBackend(s.primary); record != nil {
		return record, LoadPrimary
	}

	record := s.loadFromBackend(s.backup)
	if record == nil {
		return nil, LoadAbsent
	}

	// Self-heal: the backup held a valid record the primary lost.
	if err := s.writeToBackend(s.primary, record); err != nil {
		s.logger.Warn("primary self-heal failed",
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("primary store repaired from backup")
	}

	return record, LoadRecoveredFromBackup
}

// HasLicenseData reports whether either backend holds a loadable record.
func (s *SecureStorage) HasLicenseData() bool {
	record, _ := s.LoadLicenseInfo()
	return record != nil
}

// ClearLicenseData removes the record from both backends. Support and
// debug tooling only; normal operation never deletes the record.
func (s *SecureStorage) ClearLicenseData() {
	for _, backend := range []storageBackend{s.primary, s.backup} {
		if err := backend.Clear(); err != nil {
			s.logger.Warn("license clear failed on backend",
				slog.String("backend", backend.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *SecureStorage) loadFromBackend(backend storageBackend) *LicenseRecord {
	blob, err := backend.Read()
	if err != nil {
		if !errors.Is(err, errBackendEmpty) {
			s.logger.Warn("license read failed on backend",
				slog.String("backend", backend.Name()),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	payload, err := s.crypto.Decrypt(blob)
	if err != nil {
		s.logger.Warn("license blob failed decryption",
			slog.String("backend", backend.Name()),
		)
		return nil
	}

	var record LicenseRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		s.logger.Warn("license blob failed deserialization",
			slog.String("backend", backend.Name()),
		)
		return nil
	}

	if !record.VerifyIntegrity(s.crypto) {
		s.logger.Warn("license record failed integrity verification",
			slog.String("backend", backend.Name()),
		)
		return nil
	}

	return &record
}

func (s *SecureStorage) writeToBackend(backend storageBackend, record *LicenseRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	blob, err := s.crypto.Encrypt(string(payload))
	if err != nil {
		return err
	}
	return backend.Write(blob)
}
