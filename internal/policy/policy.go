// Package policy holds the access configuration shared by the gate, the claims
// resolver and the configuration loader.
package policy

import (
	"slices"
	"strings"
)

// DriveConfiguration is the process-wide drive access configuration. It is built
// once at startup and never mutated.
type DriveConfiguration struct {
	// Read allows GET on drive-level routes.
	Read bool
	// Write allows PUT, POST and DELETE on drive-level routes.
	Write bool
	// Drives lists the drive ids the proxy may forward to.
	Drives []string
}

// AllowsDrive reports whether driveID is configured.
func (d DriveConfiguration) AllowsDrive(driveID string) bool {
	return driveID != "" && slices.Contains(d.Drives, driveID)
}

// PrimaryDrive returns the first configured drive, or "".
func (d DriveConfiguration) PrimaryDrive() string {
	if len(d.Drives) == 0 {
		return ""
	}
	return d.Drives[0]
}

// ItemAccessConfiguration is the per-request set of folder ids the caller may
// read from and write to.
type ItemAccessConfiguration struct {
	Read  []string
	Write []string
}

// SplitList splits a comma separated list, trimming blanks and dropping empties.
func SplitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
