package antiforensics

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"time"
)

const DefaultTimestampWindow = 365 * 24 * time.Hour

var ErrNoReference = errors.New("no reference files found")

// RandomTime returns a whole-second instant uniformly chosen in (ref-window, ref]
func RandomTime(ref time.Time, window time.Duration) time.Time {
	if window <= 0 {
		return ref.Truncate(time.Second)
	}
	offset := time.Duration(rand.Int64N(int64(window)))
	return ref.Add(-offset).Truncate(time.Second)
}

// SetTimestamps sets both access and modification time of path to t
func SetTimestamps(path string, t time.Time) error {
	if err := os.Chtimes(path, t, t); err != nil {
		return fmt.Errorf("failed to set timestamps: %w", err)
	}
	return nil
}

// RandomizeTimestamps moves the access and modification time of path to a
// random instant within window before now. It returns the chosen time.
func RandomizeTimestamps(path string, window time.Duration) (time.Time, error) {
	if window <= 0 {
		window = DefaultTimestampWindow
	}
	t := RandomTime(time.Now(), window)
	return t, SetTimestamps(path, t)
}

// BlendWithSystem gives path the timestamp profile of its surroundings:
// the median modification time of regular files in referenceDir, jittered
// by up to an hour.
func BlendWithSystem(path, referenceDir string) (time.Time, error) {
	entries, err := os.ReadDir(referenceDir)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read reference directory: %w", err)
	}

	var times []time.Time
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		times = append(times, info.ModTime())
	}
	if len(times) == 0 {
		return time.Time{}, fmt.Errorf("%w in %s", ErrNoReference, referenceDir)
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	t := RandomTime(times[len(times)/2], time.Hour)
	return t, SetTimestamps(path, t)
}

// CreateTimelineGap shifts every path back in time by the same random
// duration in [minGap, maxGap], leaving a quiet period between the files
// and the present while keeping their relative order. It returns the gap.
func CreateTimelineGap(paths []string, minGap, maxGap time.Duration) (time.Duration, error) {
	if minGap < 0 || maxGap < minGap {
		return 0, fmt.Errorf("invalid gap range %v..%v", minGap, maxGap)
	}
	gap := minGap
	if maxGap > minGap {
		gap += time.Duration(rand.Int64N(int64(maxGap - minGap)))
	}
	gap = gap.Truncate(time.Second)

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		t := info.ModTime().Add(-gap)
		if err := SetTimestamps(p, t); err != nil {
			return 0, err
		}
	}
	return gap, nil
}
