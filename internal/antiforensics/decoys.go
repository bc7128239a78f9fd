package antiforensics

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"
)

const decoyWindow = 180 * 24 * time.Hour

var (
	decoyStems = []string{
		"cache", "session", "index", "thumbs", "update", "backup", "settings",
		"history", "journal", "metrics", "sync", "state", "profile", "report",
	}
	decoyExts = []string{".dat", ".tmp", ".log", ".bak", ".db", ".cache", ".bin", ".idx"}
)

// GenerateDecoyFiles writes count files of random content and random size
// in [minSize, maxSize] into dir, each with a random timestamp from the last
// six months. Existing files are never overwritten. It returns the paths written.
func GenerateDecoyFiles(dir string, count, minSize, maxSize int) ([]string, error) {
	if count < 0 || minSize < 0 || maxSize < minSize {
		return nil, fmt.Errorf("invalid decoy parameters: count=%d size=%d..%d", count, minSize, maxSize)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	paths := make([]string, 0, count)
	for len(paths) < count {
		name := fmt.Sprintf("%s_%04x%s",
			decoyStems[rand.IntN(len(decoyStems))],
			rand.IntN(0x10000),
			decoyExts[rand.IntN(len(decoyExts))])
		path := filepath.Join(dir, name)

		size := minSize
		if maxSize > minSize {
			size += rand.IntN(maxSize - minSize + 1)
		}

		if err := writeDecoy(path, size); err != nil {
			if os.IsExist(err) {
				continue
			}
			return paths, err
		}
		if err := SetTimestamps(path, RandomTime(time.Now(), decoyWindow)); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeDecoy(path string, size int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeN(f, make([]byte, min(size, chunkSize)), int64(size), true); err != nil {
		return fmt.Errorf("failed to write decoy: %w", err)
	}
	return nil
}
