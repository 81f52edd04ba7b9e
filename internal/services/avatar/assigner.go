// Package avatar derives display colors for chat identities.
package avatar

import "hash/fnv"

// Palette is the fixed set of avatar colors
var Palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F",
}

// ColorFor maps a username to one of the palette colors.
// The mapping is a pure hash so the same name always renders with the
// same color, across calls and across processes.
func ColorFor(username string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return Palette[h.Sum32()%uint32(len(Palette))]
}
