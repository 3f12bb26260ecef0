package repository

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewTransactionRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewTransactionRepository(pool, NewSeatRepository(pool))
	assert.NotNil(t, repo)
}

func TestNewNotificationRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewNotificationRepository(pool)
	assert.NotNil(t, repo)
}
