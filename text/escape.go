package text

// Escape appends src to dst, escaping it for inclusion in a JSON string per
// the canonical serialization rules: only linebreak, double quote, backslash,
// carriage return, tab, backspace and form feed are escaped, everything else
// is included verbatim as UTF-8.
func Escape(dst, src []byte) []byte {
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			// a \u sequence is passed through so it round trips unchanged
			if i+1 < len(src) && src[i+1] == 'u' {
				dst = append(dst, '\\')
			} else {
				dst = append(dst, '\\', '\\')
			}
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\f':
			dst = append(dst, '\\', 'f')
		case '\r':
			dst = append(dst, '\\', 'r')
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

// Unescape reverses Escape in place, reusing the backing array of dst. The
// input is mangled by this, the returned slice is the unescaped prefix.
// Escapes outside the canonical set (\u, \/ and octal digits) are preserved
// verbatim so they survive a decode/encode round trip.
func Unescape(dst []byte) (b []byte) {
	var r, w int
	for ; r < len(dst); r++ {
		if dst[r] != '\\' {
			dst[w] = dst[r]
			w++
			continue
		}
		r++
		if r >= len(dst) {
			break
		}
		switch c := dst[r]; {
		case c == '"':
			dst[w] = '"'
			w++
		case c == '\\':
			dst[w] = '\\'
			w++
		case c == 'b':
			dst[w] = '\b'
			w++
		case c == 't':
			dst[w] = '\t'
			w++
		case c == 'n':
			dst[w] = '\n'
			w++
		case c == 'f':
			dst[w] = '\f'
			w++
		case c == 'r':
			dst[w] = '\r'
			w++
		default:
			dst[w] = '\\'
			w++
			dst[w] = c
			w++
		}
	}
	return dst[:w]
}
