package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbeddedAndOrdered(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "001_schema.sql", entries[0].Name())
}

func TestIssueKeysUniquePerProject(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)

	start := strings.Index(string(sql), "CREATE TABLE IF NOT EXISTS issues")
	require.GreaterOrEqual(t, start, 0)
	end := strings.Index(string(sql)[start:], ");")
	require.GreaterOrEqual(t, end, 0)
	issues := string(sql)[start : start+end]

	// Issue keys are scoped to their project. Project keys are only unique
	// per organization, so a global constraint would let an issue in one
	// org block key generation in another.
	assert.Contains(t, issues, "UNIQUE (project_id, key)")
	assert.NotContains(t, issues, "key TEXT NOT NULL UNIQUE")
}
