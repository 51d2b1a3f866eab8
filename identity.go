package cursorstream

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// A ContentID is a stable identifier for a cursor raster derived from
// its pixel content. Identical pixels produce identical identifiers
// regardless of native handle reuse or recapture; it is the sole
// cache key on both the server and observer side.
type ContentID string

const (
	contentIDPrefix = "cur_"
	contentIDHexLen = 12
)

// DigestRaster derives the content identifier for a normalized
// raster. The digest covers dimensions and pixel bytes; it is
// computed only on raster transitions, never per tick.
func DigestRaster(r *Raster) ContentID {
	h := blake3.New()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:4], uint32(r.Width))
	binary.LittleEndian.PutUint32(dims[4:], uint32(r.Height))
	h.Write(dims[:])
	h.Write(r.Pix)
	sum := h.Sum(nil)
	return ContentID(contentIDPrefix + hex.EncodeToString(sum)[:contentIDHexLen])
}
