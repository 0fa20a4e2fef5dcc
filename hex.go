package gsat

const hexDigits = "0123456789ABCDEF"

// HexDigit decodes a single hexadecimal character (upper or lower case).
func HexDigit(c byte) (uint8, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	}
	return 0, ErrMalformedHex
}

// HexToInt decodes an unsigned hexadecimal number of 1 to 8 digits.
func HexToInt(s []byte) (uint32, error) {
	if len(s) == 0 || len(s) > 8 {
		return 0, ErrMalformedHex
	}
	var n uint32
	for _, c := range s {
		d, err := HexDigit(c)
		if err != nil {
			return 0, err
		}
		n = n<<4 | uint32(d)
	}
	return n, nil
}

// IntToHex encodes n using upper case hexadecimal digits without leading
// zeros.
func IntToHex(n uint32) string {
	var buf [8]byte
	return string(AppendHex(buf[:0], n, 1))
}

// AppendHex appends the hexadecimal representation of n to dst, padded with
// zeros to at least width digits.
func AppendHex(dst []byte, n uint32, width int) []byte {
	var buf [8]byte
	i := len(buf)
	for n != 0 || i == len(buf) {
		i--
		buf[i] = hexDigits[n&0xF]
		n >>= 4
	}
	for ; len(buf)-i < width && i > 0; i-- {
		buf[i-1] = '0'
	}
	return append(dst, buf[i:]...)
}
