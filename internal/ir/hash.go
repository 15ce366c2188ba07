package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainClass    = "shadow/class/v1"
	DomainSnapshot = "shadow/snapshot/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ClassDigest identifies the bytes of one class file.
func ClassDigest(data []byte) string {
	return hashWithDomain(DomainClass, data)
}

// SnapshotDigest identifies a whole class set: every name paired with the
// digest of its bytes, in name order. Equal snapshots produce equal digests
// regardless of map iteration order.
func SnapshotDigest(classes map[string][]byte) string {
	names := make([]string, 0, len(classes))
	for n := range classes {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf []byte
	for _, n := range names {
		buf = append(buf, n...)
		buf = append(buf, 0x00)
		buf = append(buf, ClassDigest(classes[n])...)
		buf = append(buf, 0x00)
	}
	return hashWithDomain(DomainSnapshot, buf)
}
