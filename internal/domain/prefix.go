package domain

import (
	"fmt"
	"net/netip"
)

// ParsePrefix parses and canonicalizes a CIDR string. The returned prefix is
// masked, so "192.168.0.5/24" normalizes to "192.168.0.0/24".
func ParsePrefix(cidr string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid prefix %q: %w", cidr, err)
	}
	return p.Masked(), nil
}

// PrefixContains reports whether parent wholly contains child.
func PrefixContains(parent, child netip.Prefix) bool {
	return parent.Bits() <= child.Bits() && parent.Contains(child.Addr())
}

// PrefixOffset computes a child prefix from a parent CIDR and an offset
// CIDR. The offset's address is added to the parent's network address and
// the offset's length becomes the child's length. For example parent
// "10.0.0.0/23" with offset "0.0.1.0/24" yields "10.0.1.0/24".
func PrefixOffset(parent, offset string) (string, error) {
	parentPfx, err := ParsePrefix(parent)
	if err != nil {
		return "", err
	}
	offsetPfx, err := netip.ParsePrefix(offset)
	if err != nil {
		return "", fmt.Errorf("invalid offset %q: %w", offset, err)
	}
	if parentPfx.Addr().Is4() != offsetPfx.Addr().Is4() {
		return "", fmt.Errorf("offset %s does not match address family of %s", offset, parent)
	}
	if offsetPfx.Bits() < parentPfx.Bits() {
		return "", fmt.Errorf("offset %s is larger than parent %s", offset, parent)
	}

	base := parentPfx.Addr().AsSlice()
	add := offsetPfx.Addr().AsSlice()
	carry := 0
	for i := len(base) - 1; i >= 0; i-- {
		sum := int(base[i]) + int(add[i]) + carry
		base[i] = byte(sum & 0xff)
		carry = sum >> 8
	}
	addr, ok := netip.AddrFromSlice(base)
	if !ok || carry != 0 {
		return "", fmt.Errorf("offset %s overflows parent %s", offset, parent)
	}
	child := netip.PrefixFrom(addr, offsetPfx.Bits()).Masked()
	if !PrefixContains(parentPfx, child) {
		return "", fmt.Errorf("child %s is outside parent %s", child, parent)
	}
	return child.String(), nil
}

// NextAvailablePrefix finds the first child prefix of the requested length
// inside parent that does not overlap any of taken. Returns an error when
// the parent is exhausted.
func NextAvailablePrefix(parent netip.Prefix, length int, taken []netip.Prefix) (netip.Prefix, error) {
	if length < parent.Bits() {
		return netip.Prefix{}, fmt.Errorf("requested length /%d is larger than parent %s", length, parent)
	}
	maxBits := parent.Addr().BitLen()
	if length > maxBits {
		return netip.Prefix{}, fmt.Errorf("requested length /%d exceeds address size", length)
	}

	candidate := netip.PrefixFrom(parent.Addr(), length).Masked()
	for parent.Contains(candidate.Addr()) {
		overlaps := false
		for _, t := range taken {
			if PrefixContains(t, candidate) || PrefixContains(candidate, t) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			return candidate, nil
		}
		next, ok := nextSibling(candidate)
		if !ok {
			break
		}
		candidate = next
	}
	return netip.Prefix{}, fmt.Errorf("no available /%d prefix in %s", length, parent)
}

// nextSibling returns the prefix immediately following p at the same length.
func nextSibling(p netip.Prefix) (netip.Prefix, bool) {
	if p.Bits() == 0 {
		// A /0 covers the whole address space; it has no sibling.
		return netip.Prefix{}, false
	}
	bytes := p.Addr().AsSlice()
	// Add the prefix size: a 1 at bit position (Bits-1) from the left.
	bitIndex := p.Bits() - 1
	byteIndex := bitIndex / 8
	increment := byte(1 << (7 - bitIndex%8))
	for i := byteIndex; i >= 0; i-- {
		sum := int(bytes[i]) + int(increment)
		bytes[i] = byte(sum & 0xff)
		if sum <= 0xff {
			addr, ok := netip.AddrFromSlice(bytes)
			if !ok {
				return netip.Prefix{}, false
			}
			return netip.PrefixFrom(addr, p.Bits()).Masked(), true
		}
		increment = 1
	}
	return netip.Prefix{}, false
}
