package attendance

// ResolveFace picks the best verified attempt among the attempts made for a
// single detected face. Ties keep the first attempt seen, which follows
// roster order when attempts come from the Collector. The second return value
// is false when no attempt is verified.
func ResolveFace(attempts []MatchAttempt) (FaceMatch, bool) {
	var best *MatchAttempt
	for i := range attempts {
		a := &attempts[i]
		if !a.Verified {
			continue
		}
		if best == nil || a.Similarity > best.Similarity {
			best = a
		}
	}
	if best == nil {
		return FaceMatch{}, false
	}
	return FaceMatch{
		StudentID:  best.StudentID,
		PhotoIndex: best.PhotoIndex,
		FaceIndex:  best.FaceIndex,
		Similarity: best.Similarity,
	}, true
}

// ResolveFaces groups attempts by (photo, face) and resolves each group.
// Matches are returned in order of first appearance of their face.
func ResolveFaces(attempts []MatchAttempt) []FaceMatch {
	var order []faceKey
	groups := make(map[faceKey][]MatchAttempt)
	for _, a := range attempts {
		k := a.face()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], a)
	}

	matches := make([]FaceMatch, 0, len(order))
	for _, k := range order {
		if m, ok := ResolveFace(groups[k]); ok {
			matches = append(matches, m)
		}
	}
	return matches
}
