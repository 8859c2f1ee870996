// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// PasswordHasherService はパスワードハッシュ機能のインターフェースを定義する。
type PasswordHasherService interface {
	// Hash は平文パスワードからエンコード済みハッシュ文字列を生成する。
	Hash(password string) (string, error)
	// Verify はエンコード済みハッシュと平文パスワードを照合する。
	// 照合は定数時間比較で行う。
	Verify(encodedHash, password string) (bool, error)
}

// argon2Params はargon2idのコストパラメータ。
// ハッシュ文字列に埋め込まれるため、変更しても既存ハッシュの検証は壊れない。
type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// defaultParams は新規ハッシュに使用するコストパラメータ。
var defaultParams = argon2Params{
	memory:      64 * 1024, // 64 MiB
	iterations:  3,
	parallelism: 1,
	saltLength:  16,
	keyLength:   32,
}

// passwordHasher はPasswordHasherServiceのargon2id実装。
type passwordHasher struct {
	params argon2Params
}

// NewPasswordHasher はargon2idによるPasswordHasherServiceを生成する。
func NewPasswordHasher() *passwordHasher {
	return &passwordHasher{params: defaultParams}
}

// Hash は平文パスワードからエンコード済みハッシュ文字列を生成する。
// 形式: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func (h *passwordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}

	salt := make([]byte, h.params.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt,
		h.params.iterations, h.params.memory, h.params.parallelism, h.params.keyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.memory, h.params.iterations, h.params.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify はエンコード済みハッシュと平文パスワードを照合する。
// ハッシュに埋め込まれたパラメータで再計算し、定数時間比較する。
func (h *passwordHasher) Verify(encodedHash, password string) (bool, error) {
	params, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	calculated := argon2.IDKey([]byte(password), salt,
		params.iterations, params.memory, params.parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(calculated, key) == 1, nil
}

// decodeHash はエンコード済みハッシュ文字列をパラメータ・ソルト・鍵に分解する。
func decodeHash(encodedHash string) (argon2Params, []byte, []byte, error) {
	var params argon2Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, fmt.Errorf("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, fmt.Errorf("invalid hash version: %w", err)
	}
	if version != argon2.Version {
		return params, nil, nil, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.memory, &params.iterations, &params.parallelism); err != nil {
		return params, nil, nil, fmt.Errorf("invalid hash parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("invalid salt encoding: %w", err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, fmt.Errorf("invalid key encoding: %w", err)
	}

	return params, salt, key, nil
}

// compile-time interface check
var _ PasswordHasherService = (*passwordHasher)(nil)
