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

package preprocess

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	enterrors "github.com/weaviate/img2address/entities/errors"
)

// MaxImageBytes is the largest encoded image accepted (16 MiB).
const MaxImageBytes = 16 << 20

// maxPixels rejects decompression bombs before the pixel data is decoded.
var maxPixels = 178956970

// Decode decodes a PNG, JPEG, GIF, BMP, TIFF or WebP image. Every failure is
// an invalid input error.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", enterrors.NewInvalidInput("empty image")
	}
	if len(data) > MaxImageBytes {
		return nil, "", enterrors.NewInvalidInput("image of %d bytes exceeds the limit of %d bytes",
			len(data), MaxImageBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", enterrors.NewInvalidInput("decode image header: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", enterrors.NewInvalidInput("%s image has no pixels", format)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", enterrors.NewInvalidInput("%s image of %dx%d pixels is too large",
			format, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", enterrors.NewInvalidInput("decode %s image: %v", format, err)
	}
	return img, format, nil
}
