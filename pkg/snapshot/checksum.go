package snapshot

import "encoding/binary"

// fletcherBlock is the largest run of words that can be summed before the
// 32-bit accumulators risk overflow.
const fletcherBlock = 360

// Fletcher32 computes the Fletcher-32 checksum of data read as unsigned
// little-endian 16-bit words. A trailing odd byte is not part of any word and is ignored.
func Fletcher32(data []byte) uint32 {
	sum1, sum2 := uint32(0xffff), uint32(0xffff)

	words := len(data) / 2
	for words > 0 {
		n := min(words, fletcherBlock)
		words -= n
		for ; n > 0; n-- {
			sum1 += uint32(binary.LittleEndian.Uint16(data))
			sum2 += sum1
			data = data[2:]
		}
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}

	sum1 = (sum1 & 0xffff) + (sum1 >> 16)
	sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	return sum2<<16 | sum1
}
