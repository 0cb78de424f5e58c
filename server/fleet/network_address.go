package fleet

import (
	"bytes"
	"fmt"
	"net/netip"
)

type AddressFamily string

const (
	AddressFamilyINET  AddressFamily = "INET"
	AddressFamilyINET6 AddressFamily = "INET6"
)

// NetworkAddress is a structured IP address as reported by a client.
type NetworkAddress struct {
	Family      AddressFamily `json:"address_type"`
	PackedBytes []byte        `json:"packed_bytes"`
}

// NewNetworkAddress parses a textual IPv4 or IPv6 address.
func NewNetworkAddress(s string) (*NetworkAddress, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil, fmt.Errorf("parse network address: %w", err)
	}
	return NetworkAddressFromAddr(addr), nil
}

func NetworkAddressFromAddr(addr netip.Addr) *NetworkAddress {
	if addr.Is4() || addr.Is4In6() {
		b := addr.Unmap().As4()
		return &NetworkAddress{Family: AddressFamilyINET, PackedBytes: b[:]}
	}
	b := addr.As16()
	return &NetworkAddress{Family: AddressFamilyINET6, PackedBytes: b[:]}
}

// Validate returns a *TypeMismatchError unless a is a well-formed structured
// address.
func (a *NetworkAddress) Validate() error {
	if a == nil {
		return nil
	}
	switch {
	case a.Family == AddressFamilyINET && len(a.PackedBytes) == 4:
		return nil
	case a.Family == AddressFamilyINET6 && len(a.PackedBytes) == 16:
		return nil
	}
	return &TypeMismatchError{
		Field:    "ip",
		Expected: "structured network address",
		Got:      fmt.Sprintf("%s address with %d packed bytes", a.Family, len(a.PackedBytes)),
	}
}

// Addr converts a to a netip.Addr. It returns the zero Addr if a is not
// valid.
func (a *NetworkAddress) Addr() netip.Addr {
	if a == nil {
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(a.PackedBytes)
	if !ok {
		return netip.Addr{}
	}
	return addr
}

func (a *NetworkAddress) String() string {
	if a == nil {
		return ""
	}
	addr := a.Addr()
	if !addr.IsValid() {
		return ""
	}
	return addr.String()
}

func (a *NetworkAddress) Equal(o *NetworkAddress) bool {
	if a == nil || o == nil {
		return a == o
	}
	return a.Family == o.Family && bytes.Equal(a.PackedBytes, o.PackedBytes)
}

func (a *NetworkAddress) Clone() *NetworkAddress {
	if a == nil {
		return nil
	}
	return &NetworkAddress{Family: a.Family, PackedBytes: bytes.Clone(a.PackedBytes)}
}
