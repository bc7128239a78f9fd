package vfs

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/illarion/cloak/internal/crypto"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text files
)

// IsText reports whether data looks like text.
//
// Detection heuristic (in order):
//  1. Null bytes present → binary
//  2. Invalid UTF-8 in the sample → binary
//  3. >10% non-printable control chars → binary
func IsText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data[:min(len(data), BinarySampleSize)]
	if !utf8.Valid(sample) {
		// A multi-byte rune may be cut at the sample boundary
		if len(sample) < len(data) && utf8.Valid(sample[:len(sample)-utf8.UTFMax]) {
			sample = sample[:len(sample)-utf8.UTFMax]
		} else {
			return false
		}
	}

	nonPrintable := 0
	for _, b := range sample {
		// Allow tab, newline and carriage return
		if b < 32 && b != 9 && b != 10 && b != 13 {
			nonPrintable++
		}
		if b == 127 {
			nonPrintable++
		}
	}
	return nonPrintable <= len(sample)*BinaryThresholdPct/100
}

// Diff returns a unified diff from the vault file at p to hostData, or an
// empty string when they are identical. Binary content yields a one-line
// summary.
func (f *FileSystem) Diff(p string, hostData []byte) (string, error) {
	f.mu.Lock()
	clean, err := f.begin(p)
	if err != nil {
		f.mu.Unlock()
		return "", err
	}
	vaultData, err := f.readFile(clean)
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(vaultData)

	return UnifiedDiff(clean, vaultData, hostData), nil
}

// UnifiedDiff renders the change from vaultData to hostData
func UnifiedDiff(name string, vaultData, hostData []byte) string {
	if bytes.Equal(vaultData, hostData) {
		return ""
	}
	if !IsText(vaultData) || !IsText(hostData) {
		return fmt.Sprintf("Binary file %s differs (%d bytes in vault, %d bytes on host)\n",
			name, len(vaultData), len(hostData))
	}

	dmp := diffmatchpatch.New()

	// Line-mode diff for readable hunks
	vaultStr, hostStr := string(vaultData), string(hostData)
	a, b, lineArray := dmp.DiffLinesToChars(vaultStr, hostStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(vaultStr, diffs)
	if len(patches) == 0 {
		return ""
	}

	var result strings.Builder
	fmt.Fprintf(&result, "--- vault:%s\n", name)
	fmt.Fprintf(&result, "+++ host:%s\n", name)
	result.WriteString(dmp.PatchToText(patches))
	return result.String()
}
