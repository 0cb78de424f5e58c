package fleet

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNetworkAddress(t *testing.T) {
	cases := []struct {
		in     string
		family AddressFamily
		n      int
		out    string
	}{
		{"192.168.1.10", AddressFamilyINET, 4, "192.168.1.10"},
		{"::ffff:10.0.0.1", AddressFamilyINET, 4, "10.0.0.1"},
		{"2001:db8::1", AddressFamilyINET6, 16, "2001:db8::1"},
		{"::", AddressFamilyINET6, 16, "::"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			a, err := NewNetworkAddress(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.family, a.Family)
			assert.Len(t, a.PackedBytes, c.n)
			assert.Equal(t, c.out, a.String())
			assert.NoError(t, a.Validate())
		})
	}

	_, err := NewNetworkAddress("not an ip")
	require.Error(t, err)
}

func TestNetworkAddressValidate(t *testing.T) {
	var nilAddr *NetworkAddress
	assert.NoError(t, nilAddr.Validate())
	assert.Equal(t, "", nilAddr.String())
	assert.False(t, nilAddr.Addr().IsValid())

	for _, a := range []*NetworkAddress{
		{Family: AddressFamilyINET, PackedBytes: []byte("10.0.0.1")},
		{Family: AddressFamilyINET6, PackedBytes: []byte{1, 2, 3, 4}},
		{Family: "IPX", PackedBytes: []byte{1, 2, 3, 4}},
		{},
	} {
		err := a.Validate()
		var target *TypeMismatchError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "ip", target.Field)
	}
}

func TestNetworkAddressEqual(t *testing.T) {
	a := NetworkAddressFromAddr(netip.MustParseAddr("10.0.0.1"))
	b, err := NewNetworkAddress("10.0.0.1")
	require.NoError(t, err)
	c, err := NewNetworkAddress("10.0.0.2")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	var nilAddr *NetworkAddress
	assert.True(t, nilAddr.Equal(nil))

	clone := a.Clone()
	assert.True(t, a.Equal(clone))
	clone.PackedBytes[3] = 2
	assert.True(t, clone.Equal(c))
	assert.False(t, a.Equal(clone))
}
