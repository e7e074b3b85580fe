package kv

// Bucket layout: revoked keys are stored as
// 32-byte content hash -> 8-byte big-endian revocation timestamp (unix ms).
var (
	revokedKeysBucket = []byte("revoked-keys")
)
