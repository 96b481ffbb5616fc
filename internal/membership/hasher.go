package membership

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// HasherParams tunes the argon2id derivation.
type HasherParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
	SaltLen   int
}

// DefaultHasherParams is used when no explicit tuning is configured.
var DefaultHasherParams = HasherParams{Time: 1, MemoryKiB: 64 * 1024, Threads: 2, KeyLen: 32, SaltLen: 16}

// Hasher derives salted one-way password hashes. It holds no state besides
// its parameters and is safe for concurrent use.
type Hasher struct {
	params HasherParams
}

// NewHasher creates a Hasher. Zero fields in p fall back to DefaultHasherParams.
func NewHasher(p HasherParams) *Hasher {
	if p.Time == 0 {
		p.Time = DefaultHasherParams.Time
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = DefaultHasherParams.MemoryKiB
	}
	if p.Threads == 0 {
		p.Threads = DefaultHasherParams.Threads
	}
	if p.KeyLen == 0 {
		p.KeyLen = DefaultHasherParams.KeyLen
	}
	if p.SaltLen == 0 {
		p.SaltLen = DefaultHasherParams.SaltLen
	}
	return &Hasher{params: p}
}

// CreateSalt returns a fresh random salt, base64 encoded.
func (h *Hasher) CreateSalt() string {
	b := make([]byte, h.params.SaltLen)
	rand.Read(b) // never returns an error
	return base64.StdEncoding.EncodeToString(b)
}

// Hash derives the stored form of password under salt. Same inputs always
// give the same output. An empty password is hashed like any other string.
func (h *Hasher) Hash(password, salt string) string {
	key := argon2.IDKey([]byte(password), []byte(salt), h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)
	return base64.StdEncoding.EncodeToString(key)
}

// Verify re-derives the hash of password under salt and compares it with
// hashed in constant time.
func (h *Hasher) Verify(password, salt, hashed string) bool {
	derived := h.Hash(password, salt)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(hashed)) == 1
}
