// Package fingerprint finds near-identical class photos using a 64-bit
// difference hash, so a photo uploaded twice can be reported before faces
// from it are counted.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDistance is the largest Hamming distance at which two photos
// are considered the same shot.
const DefaultMaxDistance = 6

// Duplicate pairs two photo indexes whose hashes are within the distance.
type Duplicate struct {
	First    int `json:"first"`
	Second   int `json:"second"`
	Distance int `json:"distance"`
}

// Hash computes the difference hash of an encoded image.
func Hash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}
	return dHash(img), nil
}

// Distance is the number of differing bits between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// FindDuplicates returns every pair of images whose hashes differ by at most
// maxDistance bits, ordered by the first index. Images that cannot be
// decoded are skipped.
func FindDuplicates(images [][]byte, maxDistance int) []Duplicate {
	hashes := make([]uint64, len(images))
	ok := make([]bool, len(images))
	for i, data := range images {
		h, err := Hash(data)
		if err != nil {
			continue
		}
		hashes[i], ok[i] = h, true
	}

	var out []Duplicate
	for i := range images {
		if !ok[i] {
			continue
		}
		for j := i + 1; j < len(images); j++ {
			if !ok[j] {
				continue
			}
			if d := Distance(hashes[i], hashes[j]); d <= maxDistance {
				out = append(out, Duplicate{First: i, Second: j, Distance: d})
			}
		}
	}
	return out
}

// dHash compares horizontally adjacent pixels of a 9x8 grayscale thumbnail.
func dHash(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if small.GrayAt(x, y).Y > small.GrayAt(x+1, y).Y {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}
