package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RFarrand/commis/internal/canonical"
)

func TestMarshal_SortsKeys(t *testing.T) {
	type payload struct {
		Zulu  string `json:"zulu"`
		Alpha string `json:"alpha"`
		Mike  int    `json:"mike"`
	}

	b, err := canonical.Marshal(payload{Zulu: "z", Alpha: "a", Mike: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","mike":1,"zulu":"z"}`, string(b))
}

func TestHash_Deterministic(t *testing.T) {
	v := map[string]any{"b": 2, "a": 1, "nested": map[string]any{"y": true, "x": false}}

	first, err := canonical.Hash(v)
	require.NoError(t, err)

	second, err := canonical.Hash(v)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestHash_SensitiveToValues(t *testing.T) {
	a, err := canonical.Hash(map[string]int{"amount": 100})
	require.NoError(t, err)

	b, err := canonical.Hash(map[string]int{"amount": 101})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHash_NumberPrecisionPreserved(t *testing.T) {
	// Large integers and high-precision decimals must not pass through
	// float64 on the re-marshal.
	a, err := canonical.Hash(map[string]any{"n": "9007199254740993"})
	require.NoError(t, err)

	b, err := canonical.Hash(map[string]any{"n": "9007199254740992"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
