package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructDatabaseURL(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		database string
		want     string
	}{
		{"no database name", "postgres://u:p@localhost:5432", "", "postgres://u:p@localhost:5432"},
		{"plain", "postgres://u:p@localhost:5432", "spinwheel", "postgres://u:p@localhost:5432/spinwheel?sslmode=disable"},
		{"trailing slash", "postgres://u:p@localhost:5432/", "spinwheel", "postgres://u:p@localhost:5432/spinwheel?sslmode=disable"},
		{"existing query", "postgres://u:p@localhost:5432?connect_timeout=5", "spinwheel", "postgres://u:p@localhost:5432/spinwheel?connect_timeout=5&sslmode=disable"},
		{"sslmode kept", "postgres://u:p@db:5432?sslmode=require", "spinwheel", "postgres://u:p@db:5432/spinwheel?sslmode=require"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConstructDatabaseURL(tt.baseURL, tt.database))
		})
	}
}

func TestLatestMigrationVersion(t *testing.T) {
	latest, err := latestMigrationVersion()
	assert.NoError(t, err)
	assert.Equal(t, uint(1), latest)
}

func TestMigrationStatus_Pending(t *testing.T) {
	assert.True(t, MigrationStatus{Latest: 1}.Pending())
	assert.True(t, MigrationStatus{Version: 1, Latest: 2, Applied: true}.Pending())
	assert.False(t, MigrationStatus{Version: 1, Latest: 1, Applied: true}.Pending())
}
