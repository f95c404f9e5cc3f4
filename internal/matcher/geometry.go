package matcher

import (
	"image"
	"sort"
)

// duplicateIoU is the overlap above which two detections are the same face.
const duplicateIoU = 0.6

// computeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func computeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// dedupeDetections drops detections that overlap a higher scoring one.
// Survivors keep the order the face service returned them in.
func dedupeDetections(dets []Detection) []Detection {
	byScore := make([]int, len(dets))
	for i := range byScore {
		byScore[i] = i
	}
	sort.SliceStable(byScore, func(a, b int) bool {
		return dets[byScore[a]].DetScore > dets[byScore[b]].DetScore
	})

	dropped := make([]bool, len(dets))
	for n, i := range byScore {
		if dropped[i] {
			continue
		}
		for _, j := range byScore[n+1:] {
			if !dropped[j] && computeIoU(dets[i].BBox, dets[j].BBox) > duplicateIoU {
				dropped[j] = true
			}
		}
	}

	out := make([]Detection, 0, len(dets))
	for i, d := range dets {
		if !dropped[i] {
			out = append(out, d)
		}
	}
	return out
}

// padRect converts a pixel bbox [x1, y1, x2, y2] to an integer rectangle
// grown by padding (a fraction of the box size) and clipped to bounds.
// ok is false when nothing of the box lies inside bounds.
func padRect(bbox []float64, padding float64, bounds image.Rectangle) (image.Rectangle, bool) {
	if len(bbox) != 4 || bbox[2] <= bbox[0] || bbox[3] <= bbox[1] {
		return image.Rectangle{}, false
	}
	padX := (bbox[2] - bbox[0]) * padding
	padY := (bbox[3] - bbox[1]) * padding
	r := image.Rect(
		int(bbox[0]-padX), int(bbox[1]-padY),
		int(bbox[2]+padX+0.5), int(bbox[3]+padY+0.5),
	).Intersect(bounds)
	return r, !r.Empty()
}
