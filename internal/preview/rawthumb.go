package preview

import "bytes"

// minEmbeddedBytes filters out EXIF micro-thumbnails: vendor RAW files
// carry several embedded JPEGs and only the large preview is worth
// showing.
const minEmbeddedBytes = 10 * 1024

var (
	// soiMarker matches a JPEG start-of-image followed by the start of
	// the first segment marker. Requiring the third 0xFF cuts false
	// positives inside compressed sensor data.
	soiMarker = []byte{0xFF, 0xD8, 0xFF}

	eoiMarker = []byte{0xFF, 0xD9}
)

// ExtractEmbeddedJPEG scans a RAW container for embedded JPEG
// SOI..EOI ranges and returns a copy of the largest candidate at or
// above the micro-thumbnail threshold. The scan is structure-blind on
// purpose: it works identically across TIFF-based and vendor-specific
// containers.
func ExtractEmbeddedJPEG(data []byte) ([]byte, bool) {
	var bestStart, bestEnd int
	bestLen := 0

	offset := 0
	for {
		rel := bytes.Index(data[offset:], soiMarker)
		if rel < 0 {
			break
		}
		start := offset + rel

		relEnd := bytes.Index(data[start+len(soiMarker):], eoiMarker)
		if relEnd < 0 {
			// No closing marker after this point; later SOIs cannot
			// complete either.
			break
		}
		end := start + len(soiMarker) + relEnd + len(eoiMarker)

		if length := end - start; length > bestLen {
			bestStart, bestEnd, bestLen = start, end, length
		}

		offset = start + len(soiMarker)
	}

	if bestLen < minEmbeddedBytes {
		return nil, false
	}
	return append([]byte(nil), data[bestStart:bestEnd]...), true
}
