package slices

import (
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, Map([]int{1, 2, 3}, strconv.Itoa))
	assert.Nil(t, Map([]int(nil), strconv.Itoa))
}

func TestMapWithErr(t *testing.T) {
	out, err := MapWithErr([]string{"1", "2"}, strconv.Atoi)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out)

	_, err = MapWithErr([]string{"1", "x"}, strconv.Atoi)
	assert.Error(t, err)

	_, err = MapWithErr([]int{1}, func(int) (int, error) {
		return 0, errors.New("boom")
	})
	assert.Error(t, err)
}
