package wire

import (
	"crypto/sha256"
	"encoding/binary"
)

// HeaderSize is the fixed 68-byte ordered header: a big-endian seq
// followed by a 64-byte signature region. Unlike the rest of the wire
// format, the header's fields are big-endian: it is inspected and folded
// into the digest, not just carried.
const HeaderSize = 4 + 64

// Digest returns the 32-byte multicast digest: SHA-256 of the request
// payload, with its first 4 bytes overwritten by the big-endian seq so
// the digest is bound to the sequence number it was assigned.
func Digest(seq uint32, payload []byte) [32]byte {
	sum := sha256.Sum256(payload)
	binary.BigEndian.PutUint32(sum[0:4], seq)
	return sum
}

// EncodeUnicast frames a message for the admin/bootstrap path: 4 zero
// bytes followed by the serialized message.
func EncodeUnicast(msg *Message) []byte {
	out := make([]byte, 4)
	return append(out, msg.Marshal()...)
}

// IsUnicast reports whether a raw datagram's leading 4 bytes are zero,
// the receive-path classification rule for the admin/bootstrap path.
func IsUnicast(packet []byte) bool {
	return len(packet) >= 4 &&
		packet[0] == 0 && packet[1] == 0 && packet[2] == 0 && packet[3] == 0
}

// EncodeMulticastIngress frames a client's request for the sequencer:
// 32 bytes of precomputed digest, 36 zero bytes, then the serialized
// request. The sequencer in this module does not consume this framing:
// it takes requests in a Message envelope and builds egress packets with
// EncodeOrderedPacket.
func EncodeMulticastIngress(request *Request) []byte {
	body := request.Marshal()
	digest := Digest(0, body)
	out := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(out[0:32], digest[:])
	return append(out, body...)
}

// EncodeMulticastEgress frames the sequencer's output to replicas: 4
// bytes seq big-endian, the 64-byte signature region, then the
// serialized request.
func EncodeMulticastEgress(seq uint32, signature [64]byte, request *Request) []byte {
	body := request.Marshal()
	out := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint32(out[0:4], seq)
	copy(out[4:68], signature[:])
	return append(out, body...)
}

// EncodeOrderedPacket frames an already-serialized request body with the
// 68-byte ordered header, without re-marshaling a Request. Used by the
// sequencer's signing stages, which only ever hold the raw request bytes
// received from the ingress socket.
func EncodeOrderedPacket(seq uint32, signature [64]byte, body []byte) []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint32(out[0:4], seq)
	copy(out[4:68], signature[:])
	return append(out, body...)
}

// SplitHeader separates a framed ordered packet into its header fields
// and the trailing serialized request, without assuming anything about
// the signature region's internal layout.
func SplitHeader(packet []byte) (seq uint32, signature [64]byte, body []byte) {
	if len(packet) < HeaderSize {
		panic("wire: packet shorter than ordered header")
	}
	seq = binary.BigEndian.Uint32(packet[0:4])
	copy(signature[:], packet[4:68])
	body = packet[68:]
	return
}
