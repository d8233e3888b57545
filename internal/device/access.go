package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckStorageDir verifies dir exists and that the daemon can list, enter,
// and write it.
func CheckStorageDir(dir string) error {
	checks := []struct {
		mode uint32
		msg  string
	}{
		{unix.F_OK, "does not exist"},
		{unix.R_OK, "is not readable"},
		{unix.X_OK, "is not searchable"},
		{unix.W_OK, "is not writable"},
	}
	for _, check := range checks {
		if err := unix.Access(dir, check.mode); err != nil {
			return fmt.Errorf("storage directory %s %s: %w", dir, check.msg, err)
		}
	}
	return nil
}
