// Package diskspace checks free space on the filesystem receiving a copy.
// Simulation state files run to tens of gigabytes, so staging checks before
// copying rather than failing half way through.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Margin is the headroom required on top of the copied size.
const Margin = 1.05

// ShortfallError reports a copy the destination filesystem cannot hold.
type ShortfallError struct {
	Dst  string
	Need int64 // bytes, margin included
	Free int64
}

func (e *ShortfallError) Error() string {
	const gib = 1 << 30
	return fmt.Sprintf("not enough disk space for %s: need %.2f GiB, %.2f GiB free",
		e.Dst, float64(e.Need)/gib, float64(e.Free)/gib)
}

// Ensure checks that the filesystem of dst's folder can take size bytes plus
// Margin. When free space cannot be read the check passes and the copy
// fails on its own if it must.
func Ensure(dst string, size int64) error {
	free, ok := Free(filepath.Dir(dst))
	if !ok {
		return nil
	}
	need := int64(float64(size) * Margin)
	if free < need {
		return &ShortfallError{Dst: dst, Need: need, Free: free}
	}
	return nil
}

// Free returns the bytes available to the current user under dir.
func Free(dir string) (int64, bool) {
	return availableBytes(dir)
}

// IsShortfall reports whether err carries a ShortfallError.
func IsShortfall(err error) bool {
	var target *ShortfallError
	return errors.As(err, &target)
}
