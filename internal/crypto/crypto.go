// Package crypto provides the optional AEAD layer: Argon2id password-based
// key derivation and per-chunk XChaCha20-Poly1305 encryption, bound to a
// file's FileID as associated data so ciphertext from one encoding can
// never be decrypted under another's key.
//
// The Argon2id salt is fixed, by construction, to the raw 16-byte FileID —
// no additional constant is appended. Changing this construction is a
// breaking format revision.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/zsiec/yts3/internal/config"
)

// Argon2id parameters.
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // KiB, i.e. 64 MiB
	argon2Threads = 4
	argon2KeyLen  = 32
)

// NonceSize is the XChaCha20-Poly1305 nonce length.
const NonceSize = chacha20poly1305.NonceSizeX

// GenerateFileID returns 16 cryptographically random bytes.
func GenerateFileID() ([config.FileIDSize]byte, error) {
	var id [config.FileIDSize]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("crypto: generate file id: %w", err)
	}
	return id, nil
}

// DeriveKey derives a 32-byte key from password and fileID via Argon2id,
// using fileID itself as the salt.
func DeriveKey(password string, fileID [config.FileIDSize]byte) [argon2KeyLen]byte {
	derived := argon2.IDKey([]byte(password), fileID[:], argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	var key [argon2KeyLen]byte
	copy(key[:], derived)
	return key
}

// buildNonce constructs the 24-byte XChaCha20-Poly1305 nonce: fileID (16 B)
// followed by the big-endian chunk index (4 B), zero-padded to NonceSize.
func buildNonce(fileID [config.FileIDSize]byte, chunkIndex uint32) [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[:], fileID[:])
	nonce[16] = byte(chunkIndex >> 24)
	nonce[17] = byte(chunkIndex >> 16)
	nonce[18] = byte(chunkIndex >> 8)
	nonce[19] = byte(chunkIndex)
	return nonce
}

// ErrAuthFailed is the sentinel wrapped by DecryptChunk when the
// ciphertext fails to authenticate.
var ErrAuthFailed = errors.New("crypto: authentication failed")

// EncryptChunk seals plaintext with XChaCha20-Poly1305 under key, using a
// nonce derived from fileID and chunkIndex and fileID as associated data.
// The returned ciphertext is 16 bytes longer than plaintext (the Poly1305
// tag).
func EncryptChunk(key [argon2KeyLen]byte, fileID [config.FileIDSize]byte, chunkIndex uint32, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: init cipher: %w", err)
	}
	nonce := buildNonce(fileID, chunkIndex)
	return aead.Seal(nil, nonce[:], plaintext, fileID[:]), nil
}

// DecryptChunk opens ciphertext produced by EncryptChunk for the same key,
// fileID, and chunkIndex. It returns ErrAuthFailed (wrapped) on tag
// mismatch — including when fileID doesn't match the one used to encrypt.
func DecryptChunk(key [argon2KeyLen]byte, fileID [config.FileIDSize]byte, chunkIndex uint32, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: init cipher: %w", err)
	}
	nonce := buildNonce(fileID, chunkIndex)
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, fileID[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return plaintext, nil
}

// SecureZero overwrites buf with zeros. The runtime.KeepAlive calls guard
// against the compiler eliding the writes as dead stores, the same
// defense the corpus's own secure-wipe helpers rely on in the absence of a
// volatile-write primitive in Go.
func SecureZero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	runtime.KeepAlive(buf)
}
