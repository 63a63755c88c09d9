// Package bucket provides deterministic subject bucketing for feature flag
// rollouts and variant assignment.
package bucket

import (
	"crypto/md5"
	"encoding/binary"
)

// Anonymous is the fixed identifier substituted when the caller has no subject
// identity. Using a constant keeps evaluation sticky for anonymous traffic;
// a random fallback would re-bucket the same caller on every request.
const Anonymous = "anonymous"

// Assign maps (identifier, flagKey) to a stable bucket in [0,100].
// The same inputs always produce the same bucket, across processes and over
// time, which is what makes percentage rollouts and variant assignment sticky
// for a given subject.
//
// The bucket is derived from an md5 digest of "identifier:flagKey": the first
// 32 bits of the digest, interpreted as a big-endian unsigned integer, reduced
// modulo 101.
func Assign(identifier, flagKey string) int {
	if identifier == "" {
		identifier = Anonymous
	}
	sum := md5.Sum([]byte(identifier + ":" + flagKey))
	return int(binary.BigEndian.Uint32(sum[:4]) % 101)
}
