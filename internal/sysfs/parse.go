package sysfs

import "math"

// ParseUnsigned parses the leading unsigned integer of s in the given base,
// ignoring leading whitespace and anything after the digits. Base 0 infers
// hexadecimal from a 0x prefix and octal from a leading 0.
//
// Text with no leading digits, a negative sign, or a value that overflows
// uint64 all yield 0. Callers that must tell "zero" from "unknown" check
// for the file's presence separately.
func ParseUnsigned(s string, base int) uint64 {
	s = trimLeadingSpace(s)
	if s != "" && s[0] == '+' {
		s = s[1:]
	}

	switch {
	case base == 0 && hasHexPrefix(s):
		base, s = 16, s[2:]
	case base == 0 && len(s) > 1 && s[0] == '0':
		base, s = 8, s[1:]
	case base == 0:
		base = 10
	case base == 16 && hasHexPrefix(s):
		s = s[2:]
	}
	if base < 2 || base > 36 {
		return 0
	}

	var v uint64
	n := 0
	for ; n < len(s); n++ {
		d, ok := digitValue(s[n])
		if !ok || d >= uint64(base) {
			break
		}
		if v > (math.MaxUint64-d)/uint64(base) {
			return 0
		}
		v = v*uint64(base) + d
	}
	if n == 0 {
		return 0
	}
	return v
}

// ParseSigned parses the leading signed decimal integer of s. ok is false
// when s has no leading digits or the value does not fit in an int64.
func ParseSigned(s string) (int64, bool) {
	s = trimLeadingSpace(s)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	const limit = uint64(math.MaxInt64) + 1
	var v uint64
	n := 0
	for ; n < len(s) && s[n] >= '0' && s[n] <= '9'; n++ {
		d := uint64(s[n] - '0')
		if v > (limit-d)/10 {
			return 0, false
		}
		v = v*10 + d
	}
	if n == 0 {
		return 0, false
	}
	if neg {
		return -int64(v-1) - 1, true
	}
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func hasHexPrefix(s string) bool {
	return len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') && isHexDigit(s[2])
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func digitValue(c byte) (uint64, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint64(c - '0'), true
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 10, true
	case c >= 'A' && c <= 'Z':
		return uint64(c-'A') + 10, true
	}
	return 0, false
}

func trimLeadingSpace(s string) string {
	for len(s) > 0 {
		switch s[0] {
		case ' ', '\t', '\n', '\v', '\f', '\r':
			s = s[1:]
		default:
			return s
		}
	}
	return s
}
