package value

import (
	"fmt"
	"net"
)

// IPVal is a v4-or-v6 IP address. Reference type per spec.md section 3;
// lives in the ipaddrs constant pool. The on-disk encoding (spec.md
// section 6) is 17 bytes: a family byte followed by 4 or 16 address
// bytes, zero-padded. IPVal itself just wraps a net.IP; that 17-byte
// form is produced and parsed by bytecode/format.go rather than by
// writing net.IP's own (ambiguous 4-or-16-byte) representation directly
// on the wire.
type IPVal struct {
	IP net.IP // always the 16-byte form internally; net package handles v4/v6 uniformly
}

func ParseIP(s string) (*IPVal, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, false
	}
	return &IPVal{IP: ip}, true
}

func IPFromNetIP(ip net.IP) *IPVal { return &IPVal{IP: ip} }

func (p *IPVal) String() string { return p.IP.String() }

func (p *IPVal) Equal(o *IPVal) bool { return p.IP.Equal(o.IP) }

// IsV4 reports whether the address has a 4-byte canonical form, matching
// the on-disk format's family discriminant.
func (p *IPVal) IsV4() bool { return p.IP.To4() != nil }

// CidrVal pairs an IP with a prefix length.
type CidrVal struct {
	IP     net.IP
	Prefix uint8
}

func ParseCIDR(s string) (*CidrVal, bool) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, false
	}
	ones, _ := ipnet.Mask.Size()
	return &CidrVal{IP: ip, Prefix: uint8(ones)}, true
}

func (c *CidrVal) String() string {
	return fmt.Sprintf("%s/%d", c.IP.String(), c.Prefix)
}

// Contains implements PINCIDR: does ip fall within the network of c.
func (c *CidrVal) Contains(ip *IPVal) bool {
	network := &net.IPNet{IP: c.IP.Mask(prefixMask(c.IP, c.Prefix)), Mask: prefixMask(c.IP, c.Prefix)}
	return network.Contains(ip.IP)
}

func prefixMask(ip net.IP, prefix uint8) net.IPMask {
	if ip.To4() != nil {
		return net.CIDRMask(int(prefix), 32)
	}
	return net.CIDRMask(int(prefix), 128)
}
