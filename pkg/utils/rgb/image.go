package rgb

import (
	"image"
	"image/color"
)

// RGB wraps packed 24 bit frames without copying them. Every pixel is
// opaque.
type RGB struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

func NewRGB(data []byte, width, height int) *RGB {
	return &RGB{
		Pix:    data,
		Stride: width * 3,
		Rect:   image.Rect(0, 0, width, height),
	}
}

func (p *RGB) ColorModel() color.Model { return color.RGBAModel }

func (p *RGB) Bounds() image.Rectangle { return p.Rect }

func (p *RGB) Opaque() bool { return true }

func (p *RGB) At(x, y int) color.Color {
	return p.RGBAAt(x, y)
}

func (p *RGB) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: 0xff}
}

func (p *RGB) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// ToRGBA copies the frame into an *image.RGBA, which the jpeg encoder
// converts without going through At.
func (p *RGB) ToRGBA() *image.RGBA {
	dst := image.NewRGBA(p.Rect)
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		src := p.Pix[p.PixOffset(p.Rect.Min.X, y):]
		row := dst.Pix[dst.PixOffset(p.Rect.Min.X, y):]
		for x := 0; x < p.Rect.Dx(); x++ {
			row[x*4] = src[x*3]
			row[x*4+1] = src[x*3+1]
			row[x*4+2] = src[x*3+2]
			row[x*4+3] = 0xff
		}
	}
	return dst
}
