package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// keyDerivationIterations follows the OWASP recommendation for
	// PBKDF2-HMAC-SHA256.
	keyDerivationIterations = 100_000
	derivedKeyLength        = 64
	encryptionKeyLength     = 32
)

// keyDerivationSalt is the fixed application salt for key derivation.
// The machine signature supplies the per-machine entropy; the salt only
// namespaces the derived keys to this application.
var keyDerivationSalt = []byte("POSCLI-License-KDF-Salt-v1")

var (
	errCiphertextMalformed = errors.New("ciphertext malformed")
)

// CryptoHelper provides machine-bound symmetric encryption and message
// authentication. Keys are derived from the machine signature, so data
// encrypted on one machine cannot be decrypted on another.
type CryptoHelper struct {
	encryptionKey []byte
	macKey        []byte
}

// NewCryptoHelper derives the encryption and MAC keys from the given
// machine signature. Construct once per process.
func NewCryptoHelper(machineSignature string) *CryptoHelper {
	derived := pbkdf2.Key([]byte(machineSignature), keyDerivationSalt,
		keyDerivationIterations, derivedKeyLength, sha256.New)

	return &CryptoHelper{
		encryptionKey: derived[:encryptionKeyLength],
		macKey:        derived[encryptionKeyLength:],
	}
}

// Encrypt encrypts plaintext with AES-256-CBC and PKCS#7 padding. A fresh
// random IV is generated per call and prepended to the ciphertext; the
// result is base64 encoded.
func (c *CryptoHelper) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(append(iv, ciphertext...)), nil
}

// Decrypt reverses Encrypt. Malformed base64, undersized input, or
// invalid padding all yield an error rather than a panic so callers can
// fall back to a secondary store.
func (c *CryptoHelper) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", errCiphertextMalformed
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errCiphertextMalformed
	}

	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", errCiphertextMalformed
	}

	block, err := aes.NewCipher(c.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", errCiphertextMalformed
	}

	return string(unpadded), nil
}

// ComputeHash returns the hex HMAC-SHA256 tag of data under the MAC key.
func (c *CryptoHelper) ComputeHash(data string) string {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHash recomputes the tag and compares in constant time.
func (c *CryptoHelper) VerifyHash(data, tag string) bool {
	expected := c.ComputeHash(data)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(tag)) == 1
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errCiphertextMalformed
	}

	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errCiphertextMalformed
	}

	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errCiphertextMalformed
		}
	}

	return data[:len(data)-padding], nil
}
