package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStates(t *testing.T) {
	// 0b00000101: 0 号与 2 号闭合
	assert.Equal(t, []bool{true, false, true, false}, States(0x05, 4))
	assert.Len(t, States(0xFF, 12), MaxRelays)
	assert.Empty(t, States(0xFF, -1))
	assert.False(t, IsOn(0xFF, 8))
	assert.False(t, IsOn(0xFF, -1))
}

func TestParseMask(t *testing.T) {
	for in, want := range map[string]byte{"ff": 0xFF, "0x0F": 0x0F, "0X01": 0x01, " 5 ": 0x05} {
		got, err := ParseMask(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "1FF", "zz", "-1"} {
		_, err := ParseMask(in)
		assert.Error(t, err, in)
	}
}
