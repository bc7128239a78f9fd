// Package crypto provides cryptographic operations for cloak.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from password via PBKDF2
//   - 12-byte random nonce per encryption operation
//   - Optional associated data binding a ciphertext to its context
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 32-byte random salt (stored unencrypted in the container header)
//   - 210,000 iterations (OWASP minimum recommendation)
//
// The derived master key is held in a KeyGuard backed by memguard.
// Per-purpose subkeys (header MAC, file data) are split off with HKDF
// and cleared right after use.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call KeyGuard.Destroy() when a session ends
package crypto
