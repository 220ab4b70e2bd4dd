package spmi

import "golang.org/x/exp/constraints"

// align rounds `val` up to nearest multiple of `align`.
func align[T constraints.Integer](val, align T) T {
	return (val + align - 1) &^ (align - 1)
}

// wordsFor returns the number of 32-bit FIFO words needed to carry n bytes.
func wordsFor[T constraints.Integer](n T) T {
	return align(n, 4) / 4
}

// packWords packs src into little endian FIFO words appended to dst.
// Unused high bytes of the last word are zero.
func packWords(dst []uint32, src []byte) []uint32 {
	for len(src) >= 4 {
		dst = append(dst, uint32(src[0])|uint32(src[1])<<8|uint32(src[2])<<16|uint32(src[3])<<24)
		src = src[4:]
	}
	if len(src) > 0 {
		// Partial last word.
		var w uint32
		for i, b := range src {
			w |= uint32(b) << (8 * i)
		}
		dst = append(dst, w)
	}
	return dst
}

// unpackWord writes the little endian bytes of w to dst, stopping early when
// dst is shorter than 4 bytes. It returns the number of bytes written.
func unpackWord(dst []byte, w uint32) int {
	if len(dst) >= 4 {
		dst[0] = byte(w)
		dst[1] = byte(w >> 8)
		dst[2] = byte(w >> 16)
		dst[3] = byte(w >> 24)
		return 4
	}
	for i := range dst {
		dst[i] = byte(w >> (8 * i))
	}
	return len(dst)
}
