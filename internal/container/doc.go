// Package container implements the on-disk cloak container format.
//
// Layout (all integers big-endian):
//
//	MAGIC(4) | VERSION(2) | TIMESTAMP(8) | MAIN_SALT(32) | DECOY_SALT(32) |
//	PADDING_LEN(2) | PADDING | [HEADER_TAG(32), version >= 2] |
//	LEN(4) | MAIN_BLOB | [LEN(4) | DECOY_BLOB]
//
// Each blob is NONCE(12) | AES-GCM ciphertext with tag. The decoy salt is
// all zeroes when the container has no decoy payload.
//
// The package only encodes and decodes bytes; it never sees keys.
package container
