package migrations

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsIncludeUpAndDown(t *testing.T) {
	entries, err := files.ReadDir(".")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Contains(t, names, "0001_init.up.sql")
	require.Contains(t, names, "0001_init.down.sql")
}
