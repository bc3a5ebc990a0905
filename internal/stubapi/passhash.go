package stubapi

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, tuned down for an in-memory dev stub.
const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 16 * 1024 // 16 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// hashPassword returns a fresh salt and the Argon2id hash of password.
func hashPassword(password string) (salt, hash []byte, err error) {
	salt, err = randBytes(16)
	if err != nil {
		return nil, nil, err
	}
	hash = argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return salt, hash, nil
}

// verifyPassword checks password against the stored salt and hash.
func verifyPassword(password string, salt, expected []byte) bool {
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
