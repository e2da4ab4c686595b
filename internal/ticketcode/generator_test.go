package ticketcode

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func none(context.Context, string) (bool, error) { return false, nil }

func TestNextFormat(t *testing.T) {
	g := NewGenerator()
	seen := map[string]struct{}{}
	for range 200 {
		code, err := g.Next(context.Background(), none, seen)
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9A-F]{8}$`, code)
		_, dup := seen[code]
		require.False(t, dup)
		seen[code] = struct{}{}
	}
}

func TestNextSkipsReservedAndTaken(t *testing.T) {
	src := bytes.NewReader([]byte{
		0x01, 0x02, 0x03, 0x04, // reserved in this batch
		0x0a, 0x0b, 0x0c, 0x0d, // taken in the store
		0xde, 0xad, 0xbe, 0xef,
	})
	g := NewGeneratorFrom(src, 5)
	taken := func(_ context.Context, code string) (bool, error) { return code == "0A0B0C0D", nil }

	code, err := g.Next(context.Background(), taken, map[string]struct{}{"01020304": {}})
	require.NoError(t, err)
	assert.Equal(t, "DEADBEEF", code)
}

func TestNextExhausted(t *testing.T) {
	g := NewGeneratorFrom(bytes.NewReader(bytes.Repeat([]byte{0x11}, 32)), 3)
	all := func(context.Context, string) (bool, error) { return true, nil }

	_, err := g.Next(context.Background(), all, nil)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestNextPropagatesErrors(t *testing.T) {
	g := NewGeneratorFrom(bytes.NewReader(nil), 3)
	_, err := g.Next(context.Background(), none, nil)
	assert.Error(t, err)

	boom := errors.New("db gone")
	g = NewGeneratorFrom(bytes.NewReader(bytes.Repeat([]byte{0x11}, 8)), 3)
	_, err = g.Next(context.Background(), func(context.Context, string) (bool, error) { return false, boom }, nil)
	assert.ErrorIs(t, err, boom)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "DEADBEEF", Normalize("  deadBEEF\n"))
	assert.Equal(t, "", Normalize("   "))
}
