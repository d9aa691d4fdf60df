package onedrive

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned before any request is made for a child name
// OneDrive would reject.
var ErrInvalidName = errors.New("invalid item name")

const maxNameLength = 255

var reservedNames = []string{
	"CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
}

// ValidateName checks that name can address a child item by path.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name too long (max %d characters)", ErrInvalidName, maxNameLength)
	}
	if i := strings.IndexAny(name, `<>:"/\|?*`); i >= 0 {
		return fmt.Errorf("%w: name contains invalid character '%c'", ErrInvalidName, name[i])
	}

	upper := strings.ToUpper(name)
	for _, reserved := range reservedNames {
		if upper == reserved || strings.HasPrefix(upper, reserved+".") {
			return fmt.Errorf("%w: name '%s' is reserved", ErrInvalidName, name)
		}
	}
	if strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") {
		return fmt.Errorf("%w: name cannot end with period or space", ErrInvalidName)
	}
	return nil
}
