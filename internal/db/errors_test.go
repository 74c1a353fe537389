package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basehub/internal/domain"
)

func TestClassifyPgError(t *testing.T) {
	tests := []struct {
		name string
		code string
		want any
	}{
		{"unique violation", "23505", new(*domain.ConflictError)},
		{"not null violation", "23502", new(*domain.ValidationError)},
		{"invalid text representation", "22P02", new(*domain.ValidationError)},
		{"undefined column", "42703", new(*domain.ValidationError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyPgError(&pgconn.PgError{Code: tt.code, Message: tt.name})
			require.ErrorAs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.name)
		})
	}
}

func TestClassifyPgError_Passthrough(t *testing.T) {
	assert.NoError(t, classifyPgError(nil))

	// Connection failures keep their identity and stay internal.
	down := &pgconn.PgError{Code: "57P01", Message: "terminating connection"}
	assert.Equal(t, error(down), classifyPgError(down))

	plain := fmt.Errorf("dial tcp: %w", errors.New("refused"))
	assert.Equal(t, plain, classifyPgError(plain))
}
