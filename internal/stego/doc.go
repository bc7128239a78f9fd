// Package stego hides a byte payload inside an image or audio carrier.
//
// Lossless carriers (PNG, BMP, 8 and 16 bit PCM WAV) store the payload
// in the low 1 to 4 bits of each color channel or sample. JPEG and GIF
// carriers, and PNG on request, carry it as a trailer after the end of
// the image stream. Either way the payload is framed by a small header
// holding a magic, its length and a truncated SHA-256, so extraction
// never returns corrupted data. Payloads are expected to be ciphertext
// already: nothing here encrypts.
package stego
