package storage

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnStringQuotesValues(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "mood mate",
		Password: `p@ss word's\x`,
		DBName:   "moodmate",
		SSLMode:  "disable",
	}

	dsn := cfg.connString()
	assert.Equal(t,
		`host='localhost' port=5432 user='mood mate' password='p@ss word\'s\\x' dbname='moodmate' sslmode='disable'`,
		dsn)

	// the driver parses it without connecting
	_, err := pq.NewConnector(dsn)
	require.NoError(t, err)
}

func TestConnStringEmptyPassword(t *testing.T) {
	dsn := DatabaseConfig{Host: "db", Port: 5432, User: "postgres", DBName: "moodmate", SSLMode: "disable"}.connString()
	assert.Contains(t, dsn, "password=''")

	_, err := pq.NewConnector(dsn)
	require.NoError(t, err)
}
