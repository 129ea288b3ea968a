// Package crypto stores the operator and oracle API keys at rest in an
// encrypted vault file.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the vault JSON schema version.
	currentVersion = 1
)

// APIKeys is the plaintext content of a vault: the role keys the server
// authenticates privileged requests against.
type APIKeys struct {
	OperatorKey string `json:"operator_key"`
	OracleKey   string `json:"oracle_key"`
}

// vaultJSON is the on-disk format for an encrypted key vault.
type vaultJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// EncryptKeys encrypts the role keys with a password using PBKDF2-HMAC-SHA256
// key derivation and AES-256-GCM authenticated encryption. It returns the
// JSON blob suitable for writing to disk.
func EncryptKeys(keys APIKeys, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if keys.OperatorKey == "" && keys.OracleKey == "" {
		return nil, errors.New("crypto: at least one role key must be set")
	}

	plaintext, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("crypto: encoding keys: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := vaultJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}

	return json.MarshalIndent(out, "", "  ")
}

// DecryptKeys decrypts a JSON blob produced by EncryptKeys.
func DecryptKeys(encryptedJSON []byte, password string) (APIKeys, error) {
	if password == "" {
		return APIKeys{}, errors.New("crypto: password must not be empty")
	}

	var stored vaultJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return APIKeys{}, fmt.Errorf("crypto: parsing vault JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return APIKeys{}, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return APIKeys{}, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return APIKeys{}, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return APIKeys{}, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return APIKeys{}, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return APIKeys{}, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return APIKeys{}, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}

	var keys APIKeys
	if err := json.Unmarshal(plaintext, &keys); err != nil {
		return APIKeys{}, fmt.Errorf("crypto: decoding keys: %w", err)
	}
	return keys, nil
}

// LoadKeys reads and decrypts a vault file.
func LoadKeys(path, password string) (APIKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return APIKeys{}, fmt.Errorf("crypto: reading vault file: %w", err)
	}
	return DecryptKeys(data, password)
}
