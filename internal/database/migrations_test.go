package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrator_Load(t *testing.T) {
	m := &Migrator{files: fstest.MapFS{
		"migrations/002_add_payouts.sql":        {Data: []byte("CREATE TABLE payouts ();")},
		"migrations/001_create_core_tables.sql": {Data: []byte("CREATE TABLE societies ();")},
		"migrations/README.md":                  {Data: []byte("not sql")},
		"migrations/draft.sql":                  {Data: []byte("no version")},
	}}

	migrations, err := m.Load()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create_core_tables", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE societies ();", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "add_payouts", migrations[1].Name)
}

func TestMigrator_LoadRejectsDuplicateVersions(t *testing.T) {
	m := &Migrator{files: fstest.MapFS{
		"migrations/001_a.sql": {Data: []byte("SELECT 1;")},
		"migrations/1_b.sql":   {Data: []byte("SELECT 2;")},
	}}

	_, err := m.Load()
	assert.ErrorContains(t, err, "migration version 1")
}

func TestMigrator_EmbeddedMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil).Load()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE")
}

func TestConfig_DSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/x", Config{URL: "postgres://u:p@db:5432/x", Host: "ignored"}.DSN())
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=society_ticketing sslmode=disable",
		Config{Host: "localhost", Port: 5432, User: "postgres", Password: "secret", DBName: "society_ticketing", SSLMode: "disable"}.DSN(),
	)
}
