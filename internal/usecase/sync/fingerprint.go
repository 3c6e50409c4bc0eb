package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"

	"github.com/notedex/notedex/internal/domain/source"
)

// fingerprintPage digests the content-bearing parts of a page's entries.
// Entry order matters: reordering content is a real change. NUL bytes
// separate fields so concatenation cannot produce collisions between
// adjacent values.
func fingerprintPage(entries []source.Entry) string {
	h := sha256.New()
	for _, e := range entries {
		writeField(h, e.ID)
		writeField(h, e.Text)
		writeField(h, strconv.FormatInt(e.CreatedAt.Unix(), 10))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, s string) {
	io.WriteString(w, s)
	w.Write([]byte{0})
}
