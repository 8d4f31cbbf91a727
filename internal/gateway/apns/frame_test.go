package apns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	t.Run("AddItem rejects malformed hex", func(t *testing.T) {
		f := &Frame{}
		err := f.AddItem("not-hex", []byte("p"), 1, 0, 10)
		require.Error(t, err)
		assert.Equal(t, 0, f.Len())
	})

	t.Run("Empty frame encodes a bare header", func(t *testing.T) {
		f := &Frame{}
		assert.Equal(t, []byte{2, 0, 0, 0, 0}, f.WireFormat())
	})

	t.Run("Single item wire layout", func(t *testing.T) {
		f := &Frame{}
		require.NoError(t, f.AddItem("aaaa", []byte("p"), 7, 9, 10))

		got := f.WireFormat()

		// Item fields: token 2B, payload 1B, identifier 4B, expiry 4B,
		// priority 1B, each behind a 3-byte field header.
		want := []byte{
			2, 0, 0, 0, 27,
			1, 0, 2, 0xaa, 0xaa,
			2, 0, 1, 'p',
			3, 0, 4, 0, 0, 0, 7,
			4, 0, 4, 0, 0, 0, 9,
			5, 0, 1, 10,
		}
		assert.Equal(t, want, got)
	})

	t.Run("Items are concatenated in insertion order", func(t *testing.T) {
		f := &Frame{}
		require.NoError(t, f.AddItem("aaaa", []byte("p"), 1, 0, 10))
		require.NoError(t, f.AddItem("bbbb", []byte("p"), 2, 0, 10))

		got := f.WireFormat()
		assert.Equal(t, 2, f.Len())
		assert.Equal(t, byte(2), got[0])
		assert.Equal(t, len(got)-5, 2*27)
		assert.Equal(t, []byte{1, 0, 2, 0xaa, 0xaa}, got[5:10])
		assert.Equal(t, []byte{1, 0, 2, 0xbb, 0xbb}, got[32:37])
	})
}
