package antiforensics

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultWipeFileSize = 256 << 20 // bytes per filler file
)

// WipeOptions controls WipeFreeSpace
type WipeOptions struct {
	// MaxBytes stops filling after this many bytes. Zero fills until the
	// filesystem reports it is full.
	MaxBytes int64
	// FileSize caps each filler file
	FileSize int64
	// Passes used when deleting the filler files
	Passes int
	// Limiter throttles writes in bytes per second. Nil means unthrottled.
	Limiter *rate.Limiter
	Logger  *logrus.Logger
}

// WipeStats summarizes a free-space wipe
type WipeStats struct {
	BytesWritten int64
	Files        int
	DiskFull     bool
}

// WipeFreeSpace approximates wiping unallocated space on the filesystem
// holding dir: it fills the disk with random filler files and then securely
// deletes them. This is slow by nature. Cancelling ctx stops filling early;
// filler files are always removed before returning.
func WipeFreeSpace(ctx context.Context, dir string, opts WipeOptions) (WipeStats, error) {
	var stats WipeStats

	if opts.FileSize <= 0 {
		opts.FileSize = DefaultWipeFileSize
	}
	if opts.Passes <= 0 {
		opts.Passes = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	var fillers []string
	defer func() {
		for _, p := range fillers {
			if err := SecureDelete(p, opts.Passes); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.WithFields(logrus.Fields{"path": p, "error": err}).Warn("Failed to remove filler file")
				_ = os.Remove(p)
			}
		}
	}()

	buf := make([]byte, chunkSize)
	for opts.MaxBytes == 0 || stats.BytesWritten < opts.MaxBytes {
		path := filepath.Join(dir, ".wipe-"+uuid.NewString())
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			if isDiskFull(err) {
				stats.DiskFull = true
				break
			}
			return stats, fmt.Errorf("failed to create filler file: %w", err)
		}
		fillers = append(fillers, path)
		stats.Files++

		full, err := fill(ctx, f, buf, opts, &stats)
		syncErr := f.Sync()
		f.Close()
		if err != nil {
			return stats, err
		}
		if full || isDiskFull(syncErr) {
			stats.DiskFull = true
			break
		}
	}

	logger.WithFields(logrus.Fields{
		"event":     "free_space_wiped",
		"bytes":     stats.BytesWritten,
		"files":     stats.Files,
		"disk_full": stats.DiskFull,
	}).Info("Free space wipe finished")
	return stats, nil
}

// fill writes random chunks to f until the file cap, the byte budget or a
// full disk is reached. It reports whether the disk filled up.
func fill(ctx context.Context, f *os.File, buf []byte, opts WipeOptions, stats *WipeStats) (bool, error) {
	var written int64
	for written < opts.FileSize {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		n := int64(len(buf))
		if left := opts.FileSize - written; left < n {
			n = left
		}
		if opts.MaxBytes > 0 {
			if left := opts.MaxBytes - stats.BytesWritten; left < n {
				n = left
			}
		}
		if n <= 0 {
			return false, nil
		}

		if err := wait(ctx, opts.Limiter, int(n)); err != nil {
			return false, err
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			return false, err
		}
		m, err := f.Write(buf[:n])
		written += int64(m)
		stats.BytesWritten += int64(m)
		if err != nil {
			if isDiskFull(err) {
				return true, nil
			}
			return false, fmt.Errorf("failed to write filler file: %w", err)
		}
	}
	return false, nil
}

func wait(ctx context.Context, limiter *rate.Limiter, n int) error {
	if limiter == nil {
		return nil
	}
	burst := limiter.Burst()
	if burst <= 0 {
		return limiter.WaitN(ctx, n)
	}
	// WaitN rejects requests larger than the burst
	for ; n > 0; n -= burst {
		if err := limiter.WaitN(ctx, min(n, burst)); err != nil {
			return err
		}
	}
	return nil
}

func isDiskFull(err error) bool {
	return err != nil && (errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT))
}
