package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

const (
	pointsPerInch = 72.0
	// maxSurfacePixels keeps a hostile page size from allocating gigabytes.
	maxSurfacePixels = 100 << 20
)

// viewport is the render geometry of one page: the logical size at the
// configured scale and the physical surface once the pixel ratio is applied.
type viewport struct {
	width         float64
	height        float64
	surfaceWidth  int
	surfaceHeight int
	dpi           float64
}

func newViewport(pageWidth, pageHeight, scale, pixelRatio float64) (viewport, error) {
	if !validDimension(pageWidth) || !validDimension(pageHeight) {
		return viewport{}, fmt.Errorf("invalid page size %.2fx%.2f", pageWidth, pageHeight)
	}
	v := viewport{
		width:  pageWidth * scale,
		height: pageHeight * scale,
		dpi:    pointsPerInch * scale * pixelRatio,
	}
	v.surfaceWidth = max(1, int(math.Floor(v.width*pixelRatio)))
	v.surfaceHeight = max(1, int(math.Floor(v.height*pixelRatio)))
	if v.surfaceWidth*v.surfaceHeight > maxSurfacePixels {
		return viewport{}, fmt.Errorf("surface %dx%d exceeds pixel limit", v.surfaceWidth, v.surfaceHeight)
	}
	return v, nil
}

func validDimension(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// paint fills an opaque white surface of the viewport's physical size and
// draws the rasterized page onto it. Engines round DPI differently, so a
// page that does not match the surface exactly is resampled to fit.
func paint(v viewport, page image.Image) *image.NRGBA {
	surface := imaging.New(v.surfaceWidth, v.surfaceHeight, color.White)
	src := page.Bounds()
	dst := surface.Bounds()
	if src.Dx() == dst.Dx() && src.Dy() == dst.Dy() {
		draw.Draw(surface, dst, page, src.Min, draw.Over)
		return surface
	}
	draw.CatmullRom.Scale(surface, dst, page, src, draw.Over, nil)
	return surface
}

// encodeJPEG serializes the surface, downscaling first when maxWidth is set
func encodeJPEG(img image.Image, quality, maxWidth int) ([]byte, image.Rectangle, error) {
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, image.Rectangle{}, err
	}
	return buf.Bytes(), img.Bounds(), nil
}
