package common

import (
	"crypto/rand"
	"math/big"
)

// GenerateRandByteArray returns size bytes from the OS entropy source.
// Panics if the source fails; a host without working entropy cannot
// mint credentials safely.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandomStringFrom returns a string of length n whose characters are
// drawn uniformly from alphabet using crypto/rand. rand.Int performs
// rejection sampling, so no modulo bias is introduced.
func RandomStringFrom(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

// WipeByteArray overwrites b with zeros. Used to drop plaintext secrets
// from memory once they have been encrypted or compared.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
