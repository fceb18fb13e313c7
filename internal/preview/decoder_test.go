package preview

import (
	"errors"
	"testing"
)

// exifWithThumbnail builds a metadata-only JPEG whose EXIF block carries
// a real thumbnail in IFD1, the layout TIFF-based RAW containers use.
func exifWithThumbnail(t *testing.T, thumb []byte) []byte {
	t.Helper()

	const thumbOffset = 56
	le16 := func(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
	le32 := func(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

	tiff := []byte{0x49, 0x49, 0x2A, 0x00}
	tiff = append(tiff, le32(8)...) // IFD0 at offset 8

	// IFD0: a single orientation tag, chained to IFD1.
	tiff = append(tiff, le16(1)...)
	tiff = append(tiff, le16(0x0112)...) // Orientation
	tiff = append(tiff, le16(3)...)      // SHORT
	tiff = append(tiff, le32(1)...)
	tiff = append(tiff, le32(1)...)
	tiff = append(tiff, le32(26)...) // IFD1 at offset 26

	// IFD1: thumbnail offset and length.
	tiff = append(tiff, le16(2)...)
	tiff = append(tiff, le16(0x0201)...) // JPEGInterchangeFormat
	tiff = append(tiff, le16(4)...)      // LONG
	tiff = append(tiff, le32(1)...)
	tiff = append(tiff, le32(thumbOffset)...)
	tiff = append(tiff, le16(0x0202)...) // JPEGInterchangeFormatLength
	tiff = append(tiff, le16(4)...)
	tiff = append(tiff, le32(1)...)
	tiff = append(tiff, le32(uint32(len(thumb)))...)
	tiff = append(tiff, le32(0)...) // no next IFD

	if len(tiff) != thumbOffset {
		t.Fatalf("tiff header = %d bytes, want %d", len(tiff), thumbOffset)
	}
	tiff = append(tiff, thumb...)

	payload := append([]byte("Exif\x00\x00"), tiff...)
	length := len(payload) + 2
	out := []byte{0xFF, 0xD8, 0xFF, 0xE1, byte(length >> 8), byte(length)}
	out = append(out, payload...)
	return append(out, 0xFF, 0xD9)
}

func TestExifThumbnailDecoder_Name(t *testing.T) {
	if got := (ExifThumbnailDecoder{}).Name(); got != "exif" {
		t.Errorf("Name() = %q, want exif", got)
	}
}

func TestExifThumbnailDecoder_DecodesMetadataThumbnail(t *testing.T) {
	thumb := testJPEG(t, 40, 30)
	container := exifWithThumbnail(t, thumb)

	dec := ExifThumbnailDecoder{MinBytes: 1}
	img, err := dec.Decode(container)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	b := img.Bounds()
	if b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("thumbnail dims = %dx%d, want 40x30", b.Dx(), b.Dy())
	}
}

func TestExifThumbnailDecoder_RejectsMicroThumbnail(t *testing.T) {
	// Default threshold filters the 160x120-class micro-images vendors
	// record first, steering the pipeline to the container scan.
	container := exifWithThumbnail(t, testJPEG(t, 40, 30))

	_, err := ExifThumbnailDecoder{}.Decode(container)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}

func TestExifThumbnailDecoder_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"jpeg without exif", testJPEG(t, 20, 20)},
		{"exif without thumbnail", exifOnlyJPEG(1)},
		{"garbage", []byte("sensor soup")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExifThumbnailDecoder{}.Decode(tt.data)
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("error = %v, want ErrUnsupported", err)
			}
		})
	}
}
