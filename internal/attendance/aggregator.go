package attendance

// Aggregate merges every attempt into one decision per roster member.
//
// Confidence is the maximum similarity over all of a student's attempts,
// whether or not that attempt won its face. A student is Present when that
// maximum clears the presence threshold. FaceMatch winners only feed the
// FacesMatched analytics. Students without attempts are Absent with zero
// confidence. Attempts for students outside the roster are ignored.
// Output order is roster order.
func Aggregate(attempts []MatchAttempt, roster []RosterMember, th Thresholds) *Decisions {
	byStudent := make(map[string][]MatchAttempt, len(roster))
	for _, a := range attempts {
		byStudent[a.StudentID] = append(byStudent[a.StudentID], a)
	}

	facesMatched := make(map[string]int, len(roster))
	for _, m := range ResolveFaces(attempts) {
		facesMatched[m.StudentID]++
	}

	decisions := make([]StudentDecision, 0, len(roster))
	for _, member := range roster {
		d := decide(member, byStudent[member.StudentID], th.Presence)
		d.FacesMatched = facesMatched[member.StudentID]
		decisions = append(decisions, d)
	}
	return newDecisions(decisions)
}

func decide(member RosterMember, attempts []MatchAttempt, presence float64) StudentDecision {
	d := StudentDecision{
		StudentID:   member.StudentID,
		StudentName: member.DisplayName,
		Status:      StatusAbsent,
		Attempts:    len(attempts),
	}
	if len(attempts) == 0 {
		return d
	}

	best := attempts[0]
	photos := make(map[int]struct{})
	for _, a := range attempts {
		if a.Similarity > best.Similarity {
			best = a
		}
		if a.Verified {
			photos[a.PhotoIndex] = struct{}{}
		}
	}

	d.Confidence = best.Similarity
	d.PhotosAppeared = len(photos)
	photo, face := best.PhotoIndex, best.FaceIndex
	d.SourcePhotoIndex = &photo
	d.SourceFaceIndex = &face

	// Zero confidence is never presence, even with a zero threshold.
	if d.Confidence > 0 && d.Confidence >= presence {
		d.Status = StatusPresent
	}
	return d
}
