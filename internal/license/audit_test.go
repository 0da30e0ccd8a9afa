package license

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditWriter_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	writer := NewAuditWriter(path, nil)

	writer.Record("trial_initialized", "trial_active", "", testSignature)
	writer.Record("activated", "activated", "ABCD-****-****-MNOP", testSignature)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}

	require.Len(t, entries, 2)
	assert.Equal(t, "trial_initialized", entries[0].Action)
	assert.Equal(t, "activated", entries[1].Action)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestAuditWriter_MasksSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	writer := NewAuditWriter(path, nil)

	writer.Record("activated", "activated", "", testSignature)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), testSignature)
	assert.Contains(t, string(data), testSignature[:8])
}

func TestAuditWriter_DisabledAndNil(t *testing.T) {
	// Neither an empty path nor a nil writer may panic.
	NewAuditWriter("", nil).Record("a", "b", "c", "d")

	var writer *AuditWriter
	writer.Record("a", "b", "c", "d")
}

func TestMaskSignature(t *testing.T) {
	assert.Equal(t, "short", maskSignature("short"))
	assert.Equal(t, "12345678...", maskSignature("1234567890abcdef"))
}
