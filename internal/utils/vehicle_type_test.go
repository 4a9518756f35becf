package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkspot/internal/db"
)

func TestParseSizeClass(t *testing.T) {
	for in, want := range map[string]db.SizeClass{
		"":           db.SizeStandard,
		"Standard":   db.SizeStandard,
		" car ":      db.SizeStandard,
		"compact":    db.SizeCompact,
		"MOTORCYCLE": db.SizeCompact,
		"suv":        db.SizeLarge,
		"large":      db.SizeLarge,
	} {
		got, err := ParseSizeClass(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSizeClass("bus")
	assert.Error(t, err)
}
