package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	e, err := Parse("127.0.0.1", 8080)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", e.String())
	assert.Equal(t, IPv4, e.Family())
	assert.False(t, e.IsWildcard())
}

func TestWildcard(t *testing.T) {
	e, err := Parse("0.0.0.0", 80)
	require.NoError(t, err)
	assert.True(t, e.IsWildcard())

	e6, err := Parse("::", 80)
	require.NoError(t, err)
	assert.True(t, e6.IsWildcard())
	assert.Equal(t, IPv6, e6.Family())
}

func TestEqualityAndOrdering(t *testing.T) {
	a := MustParse("10.0.0.1", 80)
	b := MustParse("10.0.0.1", 80)
	c := MustParse("10.0.0.2", 80)
	d := MustParse("10.0.0.1", 81)

	assert.True(t, a.Equal(b))
	assert.Equal(t, 0, a.Compare(b))
	assert.True(t, a.Compare(c) < 0)
	assert.True(t, a.Compare(d) < 0)
	assert.True(t, c.Compare(a) > 0)
}

func TestInvalidPort(t *testing.T) {
	_, err := Parse("127.0.0.1", 0)
	assert.Error(t, err)
	_, err = Parse("127.0.0.1", 70000)
	assert.Error(t, err)
}

func TestInvalidHost(t *testing.T) {
	_, err := Parse("not-an-ip", 80)
	assert.Error(t, err)
}

func TestStableCopy(t *testing.T) {
	e := MustParse("192.168.1.1", 443)
	e2 := e
	assert.Equal(t, e.String(), e2.String())
	assert.True(t, e.Equal(e2))
}
