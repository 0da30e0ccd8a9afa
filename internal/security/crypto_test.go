package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSignature = "dGVzdC1tYWNoaW5lLXNpZ25hdHVyZQ=="

func TestCryptoHelper_EncryptDecryptRoundTrip(t *testing.T) {
	helper := NewCryptoHelper(testSignature)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "empty string", plaintext: ""},
		{name: "short string", plaintext: "hello"},
		{name: "json payload", plaintext: `{"trial_start_date":"2025-01-01T00:00:00Z","is_activated":false}`},
		{name: "unicode", plaintext: "ترخيص التطبيق — 許可証"},
		{name: "exactly one block", plaintext: strings.Repeat("a", 16)},
		{name: "long payload", plaintext: strings.Repeat("license-data-", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := helper.Encrypt(tt.plaintext)
			require.NoError(t, err)
			require.NotEmpty(t, encrypted)
			assert.NotEqual(t, tt.plaintext, encrypted)

			decrypted, err := helper.Decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestCryptoHelper_EncryptProducesFreshIV(t *testing.T) {
	helper := NewCryptoHelper(testSignature)

	first, err := helper.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := helper.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestCryptoHelper_DecryptAcrossMachinesFails(t *testing.T) {
	helper := NewCryptoHelper(testSignature)
	other := NewCryptoHelper("a-different-machine-signature")

	encrypted, err := helper.Encrypt("machine-bound secret")
	require.NoError(t, err)

	decrypted, err := other.Decrypt(encrypted)
	if err == nil {
		// CBC padding can coincidentally validate under the wrong key;
		// the plaintext must still never survive the key mismatch.
		assert.NotEqual(t, "machine-bound secret", decrypted)
	}
}

func TestCryptoHelper_DecryptMalformedInput(t *testing.T) {
	helper := NewCryptoHelper(testSignature)

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "not base64", input: "!!!not-base64!!!"},
		{name: "too short", input: "QUJD"},
		{name: "not block aligned", input: "QUJDREVGR0hJSktMTU5PUFFSUw=="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := helper.Decrypt(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestCryptoHelper_ComputeAndVerifyHash(t *testing.T) {
	helper := NewCryptoHelper(testSignature)

	data := "2025-01-01T00:00:00Z|2025-01-02T00:00:00Z|sig|false"
	tag := helper.ComputeHash(data)

	assert.True(t, helper.VerifyHash(data, tag))
	assert.False(t, helper.VerifyHash(data+"x", tag))
	assert.False(t, helper.VerifyHash(strings.Replace(data, "false", "true", 1), tag))
	assert.False(t, helper.VerifyHash(data, tag[:len(tag)-1]+"0"))
	assert.False(t, helper.VerifyHash(data, ""))
}

func TestCryptoHelper_HashIsMachineBound(t *testing.T) {
	helper := NewCryptoHelper(testSignature)
	other := NewCryptoHelper("a-different-machine-signature")

	tag := helper.ComputeHash("data")
	assert.False(t, other.VerifyHash("data", tag))
}

func TestCryptoHelper_HashDeterministic(t *testing.T) {
	helper := NewCryptoHelper(testSignature)
	assert.Equal(t, helper.ComputeHash("data"), helper.ComputeHash("data"))
}

func TestPKCS7Unpad(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr bool
		want    []byte
	}{
		{name: "valid single byte pad", input: append([]byte("fifteen bytes!!"), 0x01), want: []byte("fifteen bytes!!")},
		{name: "valid full block pad", input: []byte{16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 16}, want: []byte{}},
		{name: "zero pad byte", input: append(make([]byte, 15), 0x00), wantErr: true},
		{name: "pad larger than block", input: append(make([]byte, 15), 0x20), wantErr: true},
		{name: "inconsistent padding", input: append([]byte("aaaaaaaaaaaaaa"), 0x01, 0x02), wantErr: true},
		{name: "empty input", input: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pkcs7Unpad(tt.input, 16)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
