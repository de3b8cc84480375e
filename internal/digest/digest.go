// Package digest defines fastsum's two-level block digest: SHA-256 over
// fixed-size blocks, then SHA-256 over the concatenation of those block
// digests. It is not a whole-file SHA-256 and is specific to BlockSize.
package digest

import (
	sha256simd "github.com/minio/sha256-simd"
)

// BlockSize is the size of one level-1 block. Files are split into
// ceil(size/BlockSize) blocks, the last one possibly shorter.
const BlockSize = 16 * 1024

// BigFileThreshold is the file size at or above which a read is
// serialized behind the big-file lock (see internal/pipeline).
const BigFileThreshold = 1 << 20 // 1 MiB

// Size is the length in bytes of one SHA-256 digest.
const Size = 32

// Sum returns the SHA-256 digest of data, using a SIMD-accelerated
// implementation where the platform supports it.
func Sum(data []byte) [Size]byte {
	return sha256simd.Sum256(data)
}

// Chunks returns the number of level-1 blocks a file of the given size
// splits into. A zero-byte file has zero chunks.
func Chunks(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + BlockSize - 1) / BlockSize)
}
