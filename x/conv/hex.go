package conv

const hexd = "0123456789ABCDEF"

// AppendHex appends v as exactly digits uppercase hex characters (zero-padded).
func AppendHex(dst []byte, v uint32, digits int) []byte {
	for i := digits - 1; i >= 0; i-- {
		dst = append(dst, hexd[(v>>(4*uint(i)))&0xF])
	}
	return dst
}

// AppendHexBytes appends each byte of p as two uppercase hex characters.
func AppendHexBytes(dst []byte, p []byte) []byte {
	for _, b := range p {
		dst = append(dst, hexd[b>>4], hexd[b&0xF])
	}
	return dst
}

// ParseHex decodes an unsigned value from ASCII hex (either case).
// ok is false on an empty input, a non-hex character, or more than 8 digits.
func ParseHex(s []byte) (v uint32, ok bool) {
	if len(s) == 0 || len(s) > 8 {
		return 0, false
	}
	for _, c := range s {
		n, ok := nibble(c)
		if !ok {
			return 0, false
		}
		v = v<<4 | uint32(n)
	}
	return v, true
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
