package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClocks(t *testing.T) {
	require.Equal(t, time.UTC, NewStandardImpl().Now().Location())

	instant := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var clock API = Fixed(instant)
	require.True(t, clock.Now().Equal(instant))
}
