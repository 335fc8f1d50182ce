package qr

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Scanner locates and decodes one QR code in an image. Implementations
// must not modify img and must return the same answer for the same pixels.
type Scanner interface {
	Name() string
	Scan(img image.Image) (string, bool)
}

// ZXingScanner reads QR codes with gozxing using a configurable binarizer.
type ZXingScanner struct {
	name      string
	binarizer func(gozxing.LuminanceSource) gozxing.Binarizer
	tryHarder bool
	inverted  bool
}

// NewPrimaryScanner returns the scanner used for every strategy of the
// primary chain: hybrid (local block) binarization, default effort.
func NewPrimaryScanner() *ZXingScanner {
	return &ZXingScanner{
		name:      "zxing-hybrid",
		binarizer: gozxing.NewHybridBinarizer,
	}
}

// NewFallbackScanner returns the secondary capability: global histogram
// binarization with TRY_HARDER, retried on the inverted image for
// light-on-dark prints.
func NewFallbackScanner() *ZXingScanner {
	return &ZXingScanner{
		name:      "zxing-histogram",
		binarizer: gozxing.NewGlobalHistgramBinarizer,
		tryHarder: true,
		inverted:  true,
	}
}

func (s *ZXingScanner) Name() string {
	return s.name
}

// Scan returns the decoded text, or false when no code could be read.
func (s *ZXingScanner) Scan(img image.Image) (string, bool) {
	if text, ok := s.decode(img); ok {
		return text, true
	}
	if s.inverted {
		return s.decode(imaging.Invert(img))
	}
	return "", false
}

func (s *ZXingScanner) decode(img image.Image) (text string, ok bool) {
	// gozxing panics on some degenerate bitmaps
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return "", false
	}

	src := gozxing.NewLuminanceSourceFromImage(img)
	bmp, err := gozxing.NewBinaryBitmap(s.binarizer(src))
	if err != nil {
		return "", false
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_CHARACTER_SET: "UTF-8",
	}
	if s.tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil || result == nil {
		return "", false
	}
	text = result.GetText()
	return text, text != ""
}
