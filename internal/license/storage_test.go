package license

import (
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscli/internal/security"
)

const testSignature = "dGVzdC1tYWNoaW5lLXNpZ25hdHVyZQ=="

// memoryBackend is an in-memory storage backend for tests. It can be
// told to fail reads or writes to simulate an unavailable store.
type memoryBackend struct {
	name      string
	blob      string
	failRead  bool
	failWrite bool
	writes    int
}

func (m *memoryBackend) Name() string { return m.name }

func (m *memoryBackend) Read() (string, error) {
	if m.failRead {
		return "", errors.New("backend unavailable")
	}
	if m.blob == "" {
		return "", errBackendEmpty
	}
	return m.blob, nil
}

func (m *memoryBackend) Write(blob string) error {
	if m.failWrite {
		return errors.New("backend unavailable")
	}
	m.blob = blob
	m.writes++
	return nil
}

func (m *memoryBackend) Clear() error {
	m.blob = ""
	return nil
}

func newTestStorage(t *testing.T) (*SecureStorage, *memoryBackend, *memoryBackend, *security.CryptoHelper) {
	t.Helper()
	crypto := security.NewCryptoHelper(testSignature)
	primary := &memoryBackend{name: "primary"}
	backup := &memoryBackend{name: "backup"}
	storage := newSecureStorageWithBackends(crypto, primary, backup, slog.Default())
	return storage, primary, backup, crypto
}

func testRecord(signature string) *LicenseRecord {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &LicenseRecord{
		TrialStartDate:   now,
		LastRunDate:      now,
		MachineSignature: signature,
	}
}

func TestSaveLicenseInfo_WritesBothBackends(t *testing.T) {
	storage, primary, backup, _ := newTestStorage(t)

	require.NoError(t, storage.SaveLicenseInfo(testRecord(testSignature)))

	assert.NotEmpty(t, primary.blob)
	assert.Equal(t, primary.blob, backup.blob)
}

func TestSaveLicenseInfo_SealsRecord(t *testing.T) {
	storage, _, _, crypto := newTestStorage(t)

	record := testRecord(testSignature)
	require.Empty(t, record.DataHash)
	require.NoError(t, storage.SaveLicenseInfo(record))

	assert.NotEmpty(t, record.DataHash)
	assert.True(t, record.VerifyIntegrity(crypto))
}

func TestSaveLicenseInfo_OneBackendFailing(t *testing.T) {
	storage, primary, backup, _ := newTestStorage(t)
	primary.failWrite = true

	require.NoError(t, storage.SaveLicenseInfo(testRecord(testSignature)))
	assert.NotEmpty(t, backup.blob)
}

func TestSaveLicenseInfo_AllBackendsFailing(t *testing.T) {
	storage, primary, backup, _ := newTestStorage(t)
	primary.failWrite = true
	backup.failWrite = true

	assert.Error(t, storage.SaveLicenseInfo(testRecord(testSignature)))
}

func TestLoadLicenseInfo_Primary(t *testing.T) {
	storage, _, _, _ := newTestStorage(t)
	record := testRecord(testSignature)
	require.NoError(t, storage.SaveLicenseInfo(record))

	loaded, source := storage.LoadLicenseInfo()
	require.NotNil(t, loaded)
	assert.Equal(t, LoadPrimary, source)
	assert.Equal(t, record.TrialStartDate, loaded.TrialStartDate)
	assert.Equal(t, record.MachineSignature, loaded.MachineSignature)
	assert.False(t, loaded.IsActivated)
}

func TestLoadLicenseInfo_Absent(t *testing.T) {
	storage, _, _, _ := newTestStorage(t)

	loaded, source := storage.LoadLicenseInfo()
	assert.Nil(t, loaded)
	assert.Equal(t, LoadAbsent, source)
}

func TestLoadLicenseInfo_RecoversFromBackupAndSelfHeals(t *testing.T) {
	storage, primary, backup, _ := newTestStorage(t)
	require.NoError(t, storage.SaveLicenseInfo(testRecord(testSignature)))

	// Simulate the primary losing its copy.
	primary.blob = ""
	primaryWrites := primary.writes

	loaded, source := storage.LoadLicenseInfo()
	require.NotNil(t, loaded)
	assert.Equal(t, LoadRecoveredFromBackup, source)

	// Self-heal re-wrote the primary to match the backup.
	assert.Greater(t, primary.writes, primaryWrites)
	assert.NotEmpty(t, primary.blob)

	// A subsequent load comes from the repaired primary, and the backup
	// copy is untouched.
	_, source = storage.LoadLicenseInfo()
	assert.Equal(t, LoadPrimary, source)
	assert.NotEmpty(t, backup.blob)
}

func TestLoadLicenseInfo_PrimaryReadFailure(t *testing.T) {
	storage, primary, _, _ := newTestStorage(t)
	require.NoError(t, storage.SaveLicenseInfo(testRecord(testSignature)))
	primary.failRead = true

	loaded, source := storage.LoadLicenseInfo()
	require.NotNil(t, loaded)
	assert.Equal(t, LoadRecoveredFromBackup, source)
}

func TestLoadLicenseInfo_CorruptPrimaryFallsBack(t *testing.T) {
	storage, primary, _, _ := newTestStorage(t)
	require.NoError(t, storage.SaveLicenseInfo(testRecord(testSignature)))
	primary.blob = "not-a-valid-blob"

	loaded, source := storage.LoadLicenseInfo()
	require.NotNil(t, loaded)
	assert.Equal(t, LoadRecoveredFromBackup, source)
}

func TestLoadLicenseInfo_TamperedRecordDiscarded(t *testing.T) {
	storage, primary, backup, crypto := newTestStorage(t)
	record := testRecord(testSignature)
	require.NoError(t, storage.SaveLicenseInfo(record))

	// Re-encrypt a record whose content was mutated after sealing.
	tampered := record.Clone()
	tampered.TrialStartDate = tampered.TrialStartDate.Add(-30 * 24 * time.Hour)
	// Keep the stale hash: integrity verification must fail.
	blob := encryptRecord(t, crypto, tampered)
	primary.blob = blob
	backup.blob = blob

	loaded, source := storage.LoadLicenseInfo()
	assert.Nil(t, loaded)
	assert.Equal(t, LoadAbsent, source)
}

func TestLoadLicenseInfo_HashTamperPerField(t *testing.T) {
	_, _, _, crypto := newTestStorage(t)

	base := testRecord(testSignature)
	base.Seal(crypto)
	require.True(t, base.VerifyIntegrity(crypto))

	mutations := []struct {
		name   string
		mutate func(r *LicenseRecord)
	}{
		{name: "trial start", mutate: func(r *LicenseRecord) { r.TrialStartDate = r.TrialStartDate.Add(time.Nanosecond) }},
		{name: "last run", mutate: func(r *LicenseRecord) { r.LastRunDate = r.LastRunDate.Add(time.Nanosecond) }},
		{name: "signature", mutate: func(r *LicenseRecord) { r.MachineSignature = strings.ToLower(r.MachineSignature) }},
		{name: "activated flag", mutate: func(r *LicenseRecord) { r.IsActivated = true }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			mutated := base.Clone()
			tt.mutate(mutated)
			assert.False(t, mutated.VerifyIntegrity(crypto))
		})
	}
}

func TestHasLicenseData(t *testing.T) {
	storage, _, _, _ := newTestStorage(t)
	assert.False(t, storage.HasLicenseData())

	require.NoError(t, storage.SaveLicenseInfo(testRecord(testSignature)))
	assert.True(t, storage.HasLicenseData())
}

func TestClearLicenseData(t *testing.T) {
	storage, primary, backup, _ := newTestStorage(t)
	require.NoError(t, storage.SaveLicenseInfo(testRecord(testSignature)))

	storage.ClearLicenseData()

	assert.Empty(t, primary.blob)
	assert.Empty(t, backup.blob)
	assert.False(t, storage.HasLicenseData())
}

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", ".posdata")
	backend := &fileBackend{path: path}

	_, err := backend.Read()
	assert.ErrorIs(t, err, errBackendEmpty)

	require.NoError(t, backend.Write("blob-contents"))
	blob, err := backend.Read()
	require.NoError(t, err)
	assert.Equal(t, "blob-contents", blob)

	require.NoError(t, backend.Clear())
	_, err = backend.Read()
	assert.ErrorIs(t, err, errBackendEmpty)
	// Clearing a missing file is not an error.
	assert.NoError(t, backend.Clear())
}

func encryptRecord(t *testing.T, crypto *security.CryptoHelper, record *LicenseRecord) string {
	t.Helper()
	payload, err := json.Marshal(record)
	require.NoError(t, err)
	blob, err := crypto.Encrypt(string(payload))
	require.NoError(t, err)
	return blob
}
