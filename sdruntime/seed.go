package sdruntime

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// seedSource supplies the entropy for RandomSeed.
var seedSource io.Reader = rand.Reader

// RandomSeed draws a seed uniformly from [0, 2^32).
// The range matches what the diffusion library's generators accept.
func RandomSeed() (int64, error) {
	var buf [4]byte
	if _, err := io.ReadFull(seedSource, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSeedUnavailable, err)
	}
	return int64(binary.LittleEndian.Uint32(buf[:])), nil
}
