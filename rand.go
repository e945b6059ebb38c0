package telegraph

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	mrand "math/rand"
)

// rand32 returns a random nonce for sync requests.
func rand32() uint32 {
	var buf [4]byte
	n, err := io.ReadFull(rand.Reader, buf[:])
	if n == 4 && err == nil {
		return binary.BigEndian.Uint32(buf[:])
	}

	return mrand.Uint32()
}
