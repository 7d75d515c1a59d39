//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package preprocess turns decoded images into the normalized input tensor
// of the DINOv2 backbone: shorter side resized to 224 with bicubic
// interpolation, center crop to 224x224, scaling to [0,1] and per-channel
// ImageNet normalization.
package preprocess

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/weaviate/img2address/modules/img2vec-dinov2/ent"
)

var (
	Mean = [ent.Channels]float32{0.485, 0.456, 0.406}
	Std  = [ent.Channels]float32{0.229, 0.224, 0.225}
)

// Preprocess is deterministic: the same image always yields the same tensor.
func Preprocess(img image.Image) *ent.Tensor {
	rgb := toRGB(img)
	return toTensor(resizeCrop(rgb, ent.ImageSize))
}

// toRGB drops the alpha channel without compositing, the same way a
// conversion to an RGB bitmap does. The result starts at (0, 0).
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.YCbCr, *image.Gray:
		// always opaque, the stdlib conversion is exact
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			s := src.PixOffset(b.Min.X, b.Min.Y+y)
			d := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				dst.Pix[d+0] = src.Pix[s+0]
				dst.Pix[d+1] = src.Pix[s+1]
				dst.Pix[d+2] = src.Pix[s+2]
				dst.Pix[d+3] = 0xff
				s += 4
				d += 4
			}
		}
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		d := dst.PixOffset(0, y)
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst.Pix[d+0] = c.R
			dst.Pix[d+1] = c.G
			dst.Pix[d+2] = c.B
			dst.Pix[d+3] = 0xff
			d += 4
		}
	}
	return dst
}

// resizedSize scales (w, h) so that the shorter side equals size. The longer
// side is truncated, not rounded.
func resizedSize(w, h, size int) (int, int) {
	if w <= h {
		return size, int(int64(size) * int64(h) / int64(w))
	}
	return int(int64(size) * int64(w) / int64(h)), size
}

// cropOffset rounds half to even: an odd margin of 3 pixels yields 2, a
// margin of 1 yields 0.
func cropOffset(length, size int) int {
	return int(math.RoundToEven(float64(length-size) / 2))
}

// resizeCrop is a shorter side resize to size followed by a centered
// size x size crop. Only the crop window is ever sampled, so the memory used
// does not depend on the aspect ratio of src.
func resizeCrop(src *image.RGBA, size int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == size && h == size {
		return src
	}

	nw, nh := resizedSize(w, h, size)
	left, top := cropOffset(nw, size), cropOffset(nh, size)
	dst := image.NewRGBA(image.Rect(0, 0, size, size))

	if nw == w && nh == h {
		draw.Draw(dst, dst.Bounds(), src, b.Min.Add(image.Pt(left, top)), draw.Src)
		return dst
	}

	// maps source pixels onto the resized image shifted by the crop offset
	sx, sy := float64(nw)/float64(w), float64(nh)/float64(h)
	s2d := f64.Aff3{
		sx, 0, -float64(left) - sx*float64(b.Min.X),
		0, sy, -float64(top) - sy*float64(b.Min.Y),
	}
	// Catmull-Rom is the a=-0.5 cubic convolution kernel. x/image/draw
	// widens it when downscaling, which gives the antialiased bicubic filter.
	xdraw.CatmullRom.Transform(dst, s2d, src, b, xdraw.Src, nil)
	return dst
}

// toTensor lays the pixels out as NCHW with a batch dimension of one.
func toTensor(img *image.RGBA) *ent.Tensor {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	plane := w * h
	data := make([]float32, ent.Channels*plane)

	for y := 0; y < h; y++ {
		p := img.PixOffset(img.Bounds().Min.X, img.Bounds().Min.Y+y)
		for x := 0; x < w; x++ {
			i := y*w + x
			for c := 0; c < ent.Channels; c++ {
				v := float32(img.Pix[p+c]) / 255
				data[c*plane+i] = (v - Mean[c]) / Std[c]
			}
			p += 4
		}
	}

	return &ent.Tensor{
		Shape: []int64{1, ent.Channels, int64(h), int64(w)},
		Data:  data,
	}
}
