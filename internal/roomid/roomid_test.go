package roomid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestID_OrderIndependent(t *testing.T) {
	a := "64f0c2a1b3d4e5f601234567"
	b := "64f0c2a1b3d4e5f60123456a"

	assert.Equal(t, ID(a, b), ID(b, a))
	assert.Equal(t, a+"_"+b, ID(b, a))
}

func TestID_DistinctPairsDistinctRooms(t *testing.T) {
	a := "aaa"
	b := "bbb"
	c := "ccc"

	assert.NotEqual(t, ID(a, b), ID(a, c))
	assert.NotEqual(t, ID(a, b), ID(b, c))
}

func TestID_SamePairStable(t *testing.T) {
	got := ID("zzz", "aaa")
	assert.Equal(t, "aaa_zzz", got)
	assert.Equal(t, got, ID("zzz", "aaa"))
}
