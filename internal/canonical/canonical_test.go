package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeysAndCompacts(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": []int{1, 2}, "c": map[string]string{"z": "1", "y": "2"}}
	b := map[string]interface{}{"c": map[string]string{"y": "2", "z": "1"}, "a": []int{1, 2}, "b": 1}

	outA, err := Marshal(a)
	require.NoError(t, err)
	outB, err := Marshal(b)
	require.NoError(t, err)

	assert.Equal(t, `{"a":[1,2],"b":1,"c":{"y":"2","z":"1"}}`, string(outA))
	assert.Equal(t, outA, outB)
}

func TestMarshalStructUsesTags(t *testing.T) {
	type item struct {
		Zeta  string  `json:"zeta"`
		Alpha float64 `json:"alpha"`
		Skip  string  `json:"-"`
	}
	out, err := Marshal(item{Zeta: "z", Alpha: 0.9, Skip: "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":0.9,"zeta":"z"}`, string(out))
}

func TestMarshalEscapesNonASCII(t *testing.T) {
	out, err := Marshal(map[string]string{"msg": "a\u00f1o <ok> & \U0001F600"})
	require.NoError(t, err)
	assert.Equal(t, `{"msg":"a\u00f1o <ok> & \ud83d\ude00"}`, string(out))
}

func TestMarshalLineAppendsSingleNewline(t *testing.T) {
	out, err := MarshalLine([]string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "[\"x\"]\n", string(out))
}

func TestCanonicalizePreservesNumbers(t *testing.T) {
	out, err := Canonicalize([]byte(` { "n": 1.50, "big": 123456789012345678901234567890 } `))
	require.NoError(t, err)
	assert.Equal(t, `{"big":123456789012345678901234567890,"n":1.50}`, string(out))

	again, err := Canonicalize(out)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestCanonicalizeRejectsGarbage(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
	_, err = Canonicalize([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestSHA256HexIsOrderIndependent(t *testing.T) {
	h1, err := SHA256Hex(map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := SHA256Hex(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
