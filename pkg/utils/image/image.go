package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils/rgb"
)

const DefaultQuality = 90

var ErrShortFrame = errors.New("frame is shorter than its format requires")

// Decode wraps a raw frame as an image. YUYV and NV21 planes are copied,
// RGB24 data is used in place.
func Decode(data []byte, width, height int, format types.PixelFormat) (image.Image, error) {
	need := width * height * format.BitsPerPixel() / 8
	if format != types.PixelFmtMJPEG && len(data) < need {
		return nil, fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d", ErrShortFrame, format, width, height, need, len(data))
	}
	switch format {
	case types.PixelFmtRGB24:
		return rgb.NewRGB(data[:need], width, height), nil
	case types.PixelFmtYUYV:
		return DecodeYUYV(data, width, height), nil
	case types.PixelFmtNV21:
		return DecodeNV21(data, width, height), nil
	case types.PixelFmtMJPEG:
		return jpeg.Decode(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("unsupported pixel format %s", format)
}

// DecodeYUYV converts packed 4:2:2 (Y0 U Y1 V) into a planar image.
func DecodeYUYV(data []byte, width, height int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	stride := width * 2
	for y := 0; y < height; y++ {
		row := data[y*stride : (y+1)*stride]
		yOff := y * img.YStride
		cOff := y * img.CStride
		for x := 0; x+1 < width; x += 2 {
			i := x * 2
			img.Y[yOff+x] = row[i]
			img.Y[yOff+x+1] = row[i+2]
			img.Cb[cOff+x/2] = row[i+1]
			img.Cr[cOff+x/2] = row[i+3]
		}
	}
	return img
}

// DecodeNV21 converts a Y plane followed by interleaved V/U at quarter
// resolution.
func DecodeNV21(data []byte, width, height int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	for y := 0; y < height; y++ {
		copy(img.Y[y*img.YStride:y*img.YStride+width], data[y*width:(y+1)*width])
	}
	vu := data[width*height:]
	for y := 0; y < (height+1)/2; y++ {
		for x := 0; x < (width+1)/2; x++ {
			i := y*width + x*2
			if i+1 >= len(vu) {
				return img
			}
			c := y*img.CStride + x
			img.Cr[c] = vu[i]
			img.Cb[c] = vu[i+1]
		}
	}
	return img
}

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	if p, ok := img.(*rgb.RGB); ok {
		img = p.ToRGBA()
	}
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}

// FrameToJPEG returns the frame as a JPEG. MJPEG frames are copied as they
// are.
func FrameToJPEG(f *types.Frame, quality int) ([]byte, error) {
	if f.PixelFormat == types.PixelFmtMJPEG {
		return bytes.Clone(f.Data), nil
	}
	img, err := Decode(f.Data, f.Width, f.Height, f.PixelFormat)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err = EncodeJPEG(img, &buf, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
