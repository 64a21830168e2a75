package enclaveclient

import (
	"fmt"
	"net/url"
	"strconv"
)

// Address is a parsed enclave endpoint: vsock://CID:PORT or tcp://HOST:PORT.
// A vsock address without a CID is only valid for listening.
type Address struct {
	Network  string // "vsock" or "tcp"
	CID      uint32
	Port     uint32
	HostPort string
}

func (a Address) String() string {
	if a.Network == "vsock" {
		return fmt.Sprintf("vsock://%d:%d", a.CID, a.Port)
	}
	return "tcp://" + a.HostPort
}

func ParseAddress(raw string) (Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, fmt.Errorf("invalid enclave address %q: %w", raw, err)
	}

	switch u.Scheme {
	case "tcp":
		if u.Port() == "" {
			return Address{}, fmt.Errorf("invalid enclave address %q: missing port", raw)
		}
		return Address{Network: "tcp", HostPort: u.Host}, nil

	case "vsock":
		port, err := strconv.ParseUint(u.Port(), 10, 32)
		if err != nil {
			return Address{}, fmt.Errorf("invalid vsock port in %q: %w", raw, err)
		}
		addr := Address{Network: "vsock", Port: uint32(port)}
		if host := u.Hostname(); host != "" {
			cid, err := strconv.ParseUint(host, 10, 32)
			if err != nil {
				return Address{}, fmt.Errorf("invalid vsock CID in %q: %w", raw, err)
			}
			addr.CID = uint32(cid)
		}
		return addr, nil
	}
	return Address{}, fmt.Errorf("invalid enclave address %q: scheme must be vsock or tcp", raw)
}
