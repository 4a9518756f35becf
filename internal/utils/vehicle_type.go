package utils

import (
	"fmt"
	"strings"

	"parkspot/internal/db"
)

// ParseSizeClass normalizes a spot size class. Empty means standard; vehicle type
// names are accepted as aliases.
func ParseSizeClass(s string) (db.SizeClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "car":
		return db.SizeStandard, nil
	case "compact", "motorcycle", "moto":
		return db.SizeCompact, nil
	case "large", "suv", "van":
		return db.SizeLarge, nil
	}
	return "", fmt.Errorf("unknown size class %q", s)
}
