// Package siphash implements the SipHash-2-4 message authentication code
// used by the SipHash multicast discipline: SipHash-2-4 over the 32-byte
// multicast digest, keyed per replica, truncated to a 4-byte MAC.
package siphash

import "encoding/binary"

// MAC computes the 4-byte SipHash-2-4 MAC of digest, keyed by
// (k0=all-ones, k1=replicaID), keeping the low 32 bits of the 64-bit
// output.
func MAC(replicaID uint32, digest []byte) [4]byte {
	h := mac64(^uint64(0), uint64(replicaID), digest)
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], uint32(h))
	return out
}

func rotl(x uint64, b uint) uint64 { return (x << b) | (x >> (64 - b)) }

func round(v0, v1, v2, v3 *uint64) {
	*v0 += *v1
	*v1 = rotl(*v1, 13)
	*v1 ^= *v0
	*v0 = rotl(*v0, 32)
	*v2 += *v3
	*v3 = rotl(*v3, 16)
	*v3 ^= *v2
	*v0 += *v3
	*v3 = rotl(*v3, 21)
	*v3 ^= *v0
	*v2 += *v1
	*v1 = rotl(*v1, 17)
	*v1 ^= *v2
	*v2 = rotl(*v2, 32)
}

// mac64 is the reference SipHash-2-4 construction: 2 compression rounds
// per 8-byte block, 4 finalization rounds, producing a 64-bit hash.
func mac64(k0, k1 uint64, data []byte) uint64 {
	v0 := k0 ^ 0x736f6d6570736575
	v1 := k1 ^ 0x646f72616e646f6d
	v2 := k0 ^ 0x6c7967656e657261
	v3 := k1 ^ 0x7465646279746573

	length := len(data)
	end := length - (length % 8)

	for i := 0; i < end; i += 8 {
		m := binary.LittleEndian.Uint64(data[i : i+8])
		v3 ^= m
		round(&v0, &v1, &v2, &v3)
		round(&v0, &v1, &v2, &v3)
		v0 ^= m
	}

	var last [8]byte
	copy(last[:], data[end:])
	last[7] = byte(length)
	m := binary.LittleEndian.Uint64(last[:])
	v3 ^= m
	round(&v0, &v1, &v2, &v3)
	round(&v0, &v1, &v2, &v3)
	v0 ^= m

	v2 ^= 0xff
	round(&v0, &v1, &v2, &v3)
	round(&v0, &v1, &v2, &v3)
	round(&v0, &v1, &v2, &v3)
	round(&v0, &v1, &v2, &v3)

	return v0 ^ v1 ^ v2 ^ v3
}
