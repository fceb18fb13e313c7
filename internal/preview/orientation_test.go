package preview

import (
	"image"
	"image/color"
	"testing"
)

func TestReadOrientation(t *testing.T) {
	for want := 1; want <= 8; want++ {
		got, ok := ReadOrientation(exifOnlyJPEG(want))
		if !ok {
			t.Errorf("orientation %d: not read", want)
			continue
		}
		if got != want {
			t.Errorf("orientation = %d, want %d", got, want)
		}
	}
}

func TestReadOrientation_Absent(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"plain jpeg without exif", testJPEG(t, 20, 20)},
		{"garbage", []byte("not an image")},
		{"empty", nil},
		{"orientation zero is invalid", exifOnlyJPEG(0)},
		{"orientation nine is invalid", exifOnlyJPEG(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ReadOrientation(tt.data); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

func TestApplyOrientation_Dimensions(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))

	tests := []struct {
		orientation  int
		wantW, wantH int
	}{
		{1, 40, 20},
		{2, 40, 20}, // mirror
		{3, 40, 20}, // 180
		{4, 40, 20}, // mirror + 180
		{5, 20, 40}, // transpose
		{6, 20, 40}, // 90 CW
		{7, 20, 40}, // transverse
		{8, 20, 40}, // 90 CCW
	}

	for _, tt := range tests {
		got := ApplyOrientation(src, tt.orientation)
		b := got.Bounds()
		if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
			t.Errorf("orientation %d: dims = %dx%d, want %dx%d",
				tt.orientation, b.Dx(), b.Dy(), tt.wantW, tt.wantH)
		}
	}
}

func TestApplyOrientation_SixIsClockwise(t *testing.T) {
	// 2x1 source: red then blue. A camera held 90 degrees clockwise
	// (orientation 6) needs a clockwise rotation to display upright,
	// putting red at the top.
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}
	src.SetNRGBA(0, 0, red)
	src.SetNRGBA(1, 0, blue)

	got := ApplyOrientation(src, 6)
	b := got.Bounds()
	if b.Dx() != 1 || b.Dy() != 2 {
		t.Fatalf("dims = %dx%d, want 1x2", b.Dx(), b.Dy())
	}

	top := color.NRGBAModel.Convert(got.At(b.Min.X, b.Min.Y)).(color.NRGBA)
	bottom := color.NRGBAModel.Convert(got.At(b.Min.X, b.Min.Y+1)).(color.NRGBA)
	if top != red {
		t.Errorf("top pixel = %v, want red", top)
	}
	if bottom != blue {
		t.Errorf("bottom pixel = %v, want blue", bottom)
	}
}

func TestRotate_Clockwise(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}
	src.SetNRGBA(0, 0, red)
	src.SetNRGBA(1, 0, blue)

	got := Rotate(src, 90)
	b := got.Bounds()
	if b.Dx() != 1 || b.Dy() != 2 {
		t.Fatalf("dims = %dx%d, want 1x2", b.Dx(), b.Dy())
	}

	// Clockwise: the left pixel ends up at the top.
	top := color.NRGBAModel.Convert(got.At(b.Min.X, b.Min.Y)).(color.NRGBA)
	if top != red {
		t.Errorf("top pixel = %v, want red (rotation must be clockwise)", top)
	}
}

func TestRotate_Dimensions(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))

	tests := []struct {
		degrees      int
		wantW, wantH int
	}{
		{0, 40, 20},
		{90, 20, 40},
		{180, 40, 20},
		{270, 20, 40},
	}

	for _, tt := range tests {
		got := Rotate(src, tt.degrees)
		b := got.Bounds()
		if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
			t.Errorf("Rotate(%d): dims = %dx%d, want %dx%d",
				tt.degrees, b.Dx(), b.Dy(), tt.wantW, tt.wantH)
		}
	}
}

func TestOrientationDegrees(t *testing.T) {
	tests := []struct {
		orientation int
		want        int
	}{
		{1, 0}, {2, 0},
		{3, 180}, {4, 180},
		{5, 90}, {6, 90},
		{7, 270}, {8, 270},
		{0, 0}, {9, 0},
	}

	for _, tt := range tests {
		if got := OrientationDegrees(tt.orientation); got != tt.want {
			t.Errorf("OrientationDegrees(%d) = %d, want %d", tt.orientation, got, tt.want)
		}
	}
}

func TestNormalizeRotation(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 0},
		{90, 90},
		{180, 180},
		{270, 270},
		{360, 0},
		{450, 90},
		{-90, 270},
		{-180, 180},
		{44, 0},
		{45, 90},
		{134, 90},
		{135, 180},
		{359, 0},
	}

	for _, tt := range tests {
		if got := NormalizeRotation(tt.in); got != tt.want {
			t.Errorf("NormalizeRotation(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestValidRotation(t *testing.T) {
	for _, d := range []int{0, 90, 180, 270} {
		if !ValidRotation(d) {
			t.Errorf("ValidRotation(%d) = false, want true", d)
		}
	}
	for _, d := range []int{-90, 1, 45, 91, 360} {
		if ValidRotation(d) {
			t.Errorf("ValidRotation(%d) = true, want false", d)
		}
	}
}
