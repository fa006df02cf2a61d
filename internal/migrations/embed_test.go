package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.Glob(sqlMigrations, "sql/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := 0, 0
	for _, name := range entries {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups++
		case strings.HasSuffix(name, ".down.sql"):
			downs++
		}
	}
	require.Equal(t, ups, downs)
}

func TestLatestEmbeddedVersion(t *testing.T) {
	v, err := Latest()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestStatusPending(t *testing.T) {
	assert.True(t, Status{Version: 0, Latest: 1}.Pending())
	assert.False(t, Status{Version: 1, Latest: 1}.Pending())
}
