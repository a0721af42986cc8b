package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConcatIsOrderSensitive(t *testing.T) {
	a := Sum([]byte("a"))
	b := Sum([]byte("b"))
	assert.NotEqual(t, a.Concat(b), b.Concat(a))
}

func TestSumDeterministic(t *testing.T) {
	assert.Equal(t, Sum([]byte("hello")), Sum([]byte("hello")))
}

func TestStringLength(t *testing.T) {
	h := Sum([]byte("hello"))
	assert.Len(t, h.String(), 2*Size)
}

func TestParseHashRoundTrip(t *testing.T) {
	h := Sum([]byte("round trip me"))
	parsed, err := ParseHash(h.String())
	assert.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseHashRejectsBadInput(t *testing.T) {
	_, err := ParseHash("not hex")
	assert.Error(t, err)

	_, err = ParseHash("abcd")
	assert.Error(t, err)
}
