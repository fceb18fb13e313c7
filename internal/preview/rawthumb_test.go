package preview

import (
	"bytes"
	"testing"
)

func TestExtractEmbeddedJPEG_FindsPreview(t *testing.T) {
	jpeg := noiseJPEG(t, 200, 200)
	container := rawContainer(jpeg)

	got, ok := ExtractEmbeddedJPEG(container)
	if !ok {
		t.Fatal("no embedded jpeg found")
	}
	if !bytes.Equal(got, jpeg) {
		t.Errorf("extracted %d bytes, want the %d-byte embedded jpeg", len(got), len(jpeg))
	}
}

func TestExtractEmbeddedJPEG_PicksLargestCandidate(t *testing.T) {
	small := noiseJPEG(t, 64, 64)
	large := noiseJPEG(t, 200, 200)
	if len(small) >= len(large) {
		t.Fatalf("fixture sizes inverted: small %d >= large %d", len(small), len(large))
	}

	// Vendor RAWs put the micro-thumbnail first; the scan must still
	// pick the full-size preview behind it.
	container := rawContainer(small, large)

	got, ok := ExtractEmbeddedJPEG(container)
	if !ok {
		t.Fatal("no embedded jpeg found")
	}
	if !bytes.Equal(got, large) {
		t.Errorf("extracted %d bytes, want the larger %d-byte candidate", len(got), len(large))
	}
}

func TestExtractEmbeddedJPEG_RejectsMicroThumbnails(t *testing.T) {
	tiny := testJPEG(t, 16, 16)
	if len(tiny) >= minEmbeddedBytes {
		t.Fatalf("fixture too large: %d bytes", len(tiny))
	}

	if _, ok := ExtractEmbeddedJPEG(rawContainer(tiny)); ok {
		t.Error("micro-thumbnail below threshold should be rejected")
	}
}

func TestExtractEmbeddedJPEG_NoMarkers(t *testing.T) {
	if _, ok := ExtractEmbeddedJPEG(rawContainer()); ok {
		t.Error("found a jpeg in marker-free data")
	}
	if _, ok := ExtractEmbeddedJPEG(nil); ok {
		t.Error("found a jpeg in nil data")
	}
}

func TestExtractEmbeddedJPEG_UnterminatedStart(t *testing.T) {
	// An SOI with no EOI anywhere after it cannot complete.
	data := append(make([]byte, 64), soiMarker...)
	data = append(data, make([]byte, 32)...)

	if _, ok := ExtractEmbeddedJPEG(data); ok {
		t.Error("unterminated SOI should not yield a candidate")
	}
}

func TestExtractEmbeddedJPEG_ReturnsCopy(t *testing.T) {
	jpeg := noiseJPEG(t, 200, 200)
	container := rawContainer(jpeg)

	got, ok := ExtractEmbeddedJPEG(container)
	if !ok {
		t.Fatal("no embedded jpeg found")
	}

	// Zeroing the container must not corrupt the extracted bytes.
	for i := range container {
		container[i] = 0
	}
	if !bytes.Equal(got, jpeg) {
		t.Error("extracted bytes alias the container buffer")
	}
}
