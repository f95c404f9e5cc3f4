package matcher

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// facePadding grows each detected box so the crop includes some context
	// around the face.
	facePadding = 0.2
	// maxFaceSide bounds the longer side of an encoded crop.
	maxFaceSide = 320
)

var errEmptyCrop = errors.New("face box lies outside the photo")

// decodeImage decodes JPEG, PNG, GIF, BMP or WebP data.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// cropFace cuts the padded face box out of img, scales it down so neither
// side exceeds maxFaceSide and encodes it as JPEG.
func cropFace(img image.Image, bbox []float64) ([]byte, error) {
	r, ok := padRect(bbox, facePadding, img.Bounds())
	if !ok {
		return nil, errEmptyCrop
	}

	w, h := r.Dx(), r.Dy()
	if longest := max(w, h); longest > maxFaceSide {
		w = max(1, w*maxFaceSide/longest)
		h = max(1, h*maxFaceSide/longest)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, r, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding face crop: %w", err)
	}
	return buf.Bytes(), nil
}
