package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyIndexesUseConfiguredTTL(t *testing.T) {
	indexes := IdempotencyIndexes(48 * time.Hour)
	require.Len(t, indexes, 1)
	require.NotNil(t, indexes[0].Options.ExpireAfterSeconds)
	assert.Equal(t, int32(48*60*60), *indexes[0].Options.ExpireAfterSeconds)
}
