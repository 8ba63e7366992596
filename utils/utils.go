package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"golang.org/x/crypto/blake2b"
)

func Sha256(data []byte) []byte {
	ret := sha256.Sum256(data)
	return ret[:]
}

func Assert(condition bool) {
	if !condition {
		panic("assert failed")
	}
}

// Generichash ports sodium.crypto_generichash; used for internal
// fingerprinting, never for anything the wire format specifies.
func Generichash(length int, msg []byte) []byte {
	h, err := blake2b.New(length, nil)
	if err != nil {
		panic("error in generichash")
	}
	_, err = h.Write(msg)
	if err != nil {
		panic("error in generichash")
	}
	return h.Sum(nil)
}

// concatenate slices of bytes into a new slice with a new underlying array
func Concat(slices ...[]byte) []byte {
	totalSize := 0
	for _, v := range slices {
		totalSize += len(v)
	}
	newSlice := make([]byte, totalSize)
	copiedSoFar := 0
	for _, v := range slices {
		copy(newSlice[copiedSoFar:copiedSoFar+len(v)], v)
		copiedSoFar += len(v)
	}
	return newSlice
}

// GetRandom returns a random slice of specified size
func GetRandom(size int) []byte {
	randomBytes := make([]byte, size)
	_, err := rand.Read(randomBytes)
	if err != nil {
		panic(err)
	}
	return randomBytes
}

// convert big.Int into a slice of 32 bytes
func To32Bytes(x *big.Int) []byte {
	buf := make([]byte, 32)
	x.FillBytes(buf)
	return buf
}

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
