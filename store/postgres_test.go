package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFifoSweepDue(t *testing.T) {
	cases := map[int]bool{
		1: false, 2: false, 3: false, 4: false,
		5: true, 9: false, 10: true, 15: true,
	}
	for counter, want := range cases {
		assert.Equalf(t, want, isFifoSweepDue(counter), "counter=%d", counter)
	}
}

func TestNullIfEmpty(t *testing.T) {
	assert.Equal(t, sql.NullString{}, nullIfEmpty(""))
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullIfEmpty("x"))
}
