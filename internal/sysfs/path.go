// Package sysfs reads single-value and multi-value files from the kernel's
// pseudo-filesystems (/sys and /proc).
//
// Missing files are not errors: they are reported as absent values, because
// optional hardware features simply do not create their files. Errors are
// reserved for conditions that will not go away by asking again: a directory
// that cannot be opened, or a read that fails after the file was opened.
package sysfs

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	// DefaultSysfsRoot is where the kernel mounts sysfs.
	DefaultSysfsRoot = "/sys"
	// DefaultProcfsRoot is where the kernel mounts procfs.
	DefaultProcfsRoot = "/proc"
)

// Path formats the part of a pseudo-file path below a root, such as
// "cpu%d/cpufreq/%s". A malformed format (wrong verb, missing or extra
// argument) is a programming error and panics. Roots come from
// configuration and may contain any text, so callers join them with
// filepath.Join rather than passing them through the format.
func Path(format string, args ...any) string {
	p := fmt.Sprintf(format, args...)
	if strings.Contains(p, "%!") {
		panic(fmt.Sprintf("sysfs: bad path format %q: %s", format, p))
	}
	return p
}

// PathExists reports whether path exists. Any failure to access it,
// including permission problems on a parent, counts as absent.
func PathExists(path string) bool {
	return unix.Access(path, unix.F_OK) == nil
}
