package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPing_NilDatabase(t *testing.T) {
	var db *Database
	assert.Error(t, db.Ping(context.Background()))
}

func TestPing_Connected(t *testing.T) {
	WithTestDB(t, func(tdb *TestDB) {
		db := NewDatabaseFromPool(tdb.Pool)
		assert.NoError(t, db.Ping(context.Background()))
	})
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), "://not-a-url")
	assert.Error(t, err)
}
