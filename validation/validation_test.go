package validation

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Ratio    float64 `validate:"gte=0,lte=1"`
	Distance float64 `validate:"gt=0"`
	Method   string  `validate:"oneof=a b"`
}

func TestStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, Struct("sample", sampleConfig{Ratio: 0.5, Distance: 1, Method: "a"}))
	})
	t.Run("ratio out of range", func(t *testing.T) {
		err := Struct("sample", sampleConfig{Ratio: 1.5, Distance: 1, Method: "a"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
		assert.Contains(t, err.Error(), "Ratio")
		assert.Contains(t, err.Error(), "sample")
	})
	t.Run("negative distance and bad method", func(t *testing.T) {
		err := Struct("sample", sampleConfig{Ratio: 0.1, Distance: -2, Method: "c"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Distance")
		assert.Contains(t, err.Error(), "Method")
	})
}

func TestFail(t *testing.T) {
	err := Fail("tracker", "max %d below min %d", 1, 2)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "tracker: max 1 below min 2")
}
