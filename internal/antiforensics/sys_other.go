//go:build !unix

package antiforensics

// DisableCoreDumps is a no-op on platforms without core rlimits
func DisableCoreDumps() error {
	return nil
}

func kernelRelease() string {
	return ""
}
