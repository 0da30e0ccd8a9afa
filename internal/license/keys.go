package license

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	licenseErrors "poscli/internal/errors"
)

// Activation keys are four dash-separated four-character uppercase
// alphanumeric groups. The first three groups are opaque; the fourth is a
// checksum binding the key to one machine signature.
var keyFormatPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

const keyGroupCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NormalizeKey trims surrounding whitespace and uppercases a key as
// entered by the user.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// ValidateKeyFormat checks the normalized key shape without any machine
// binding verification.
func ValidateKeyFormat(key string) error {
	if !keyFormatPattern.MatchString(key) {
		return licenseErrors.ErrInvalidLicenseFormat
	}
	return nil
}

// VerifyKeyBinding checks that the key's checksum group matches the given
// machine signature. A correctly formatted key issued for another machine
// fails here.
func VerifyKeyBinding(key, machineSignature string) error {
	if err := ValidateKeyFormat(key); err != nil {
		return err
	}

	groups := strings.Split(key, "-")
	expected := bindingChecksum(groups[0]+groups[1]+groups[2], machineSignature)
	if groups[3] != expected {
		return licenseErrors.ErrInvalidLicenseKey
	}
	return nil
}

// GenerateKey issues a new activation key bound to the given machine
// signature. Used by the license-keygen support tool.
func GenerateKey(machineSignature string) (string, error) {
	if machineSignature == "" {
		return "", fmt.Errorf("machine signature cannot be empty")
	}

	groups := make([]string, 0, 4)
	for i := 0; i < 3; i++ {
		group, err := randomKeyGroup()
		if err != nil {
			return "", fmt.Errorf("failed to generate key group: %w", err)
		}
		groups = append(groups, group)
	}

	prefix := groups[0] + groups[1] + groups[2]
	groups = append(groups, bindingChecksum(prefix, machineSignature))

	return strings.Join(groups, "-"), nil
}

// bindingChecksum derives the fourth key group: the first four hex
// characters of SHA-256(prefix || signature), uppercased. A light
// deterrent rather than cryptographic issuance; kept stable for
// compatibility with already-issued keys.
func bindingChecksum(prefix, machineSignature string) string {
	sum := sha256.Sum256([]byte(prefix + machineSignature))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:4])
}

func randomKeyGroup() (string, error) {
	group := make([]byte, 4)
	max := big.NewInt(int64(len(keyGroupCharset)))
	for i := range group {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		group[i] = keyGroupCharset[n.Int64()]
	}
	return string(group), nil
}
