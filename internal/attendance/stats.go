package attendance

// DefaultMinAttendancePercentage is the attendance level below which a
// student is flagged.
const DefaultMinAttendancePercentage = 75.0

// StudentStats is one student's attendance over a set of sessions.
type StudentStats struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	Present     int     `json:"present"`
	Absent      int     `json:"absent"`
	Total       int     `json:"total"`
	Percentage  float64 `json:"attendance_percentage"`
}

// SessionStats is the attendance level of one session.
type SessionStats struct {
	ID         string  `json:"id"`
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	Subject    string  `json:"subject"`
	TimeSlot   string  `json:"time_slot"`
	Present    int     `json:"present"`
	Total      int     `json:"total"`
	Percentage float64 `json:"attendance_percentage"`
}

// Stats summarizes attendance across sessions.
type Stats struct {
	TotalSessions int            `json:"total_sessions"`
	Students      []StudentStats `json:"student_stats"`
	Sessions      []SessionStats `json:"session_stats"`
	BelowMinimum  []StudentStats `json:"students_below_threshold"`
}

// ComputeStats derives statistics from sessions. Sessions superseded by
// another session in the input are skipped, so an amended session counts
// once. Students appear in order of first appearance.
func ComputeStats(sessions []Session, minPercentage float64) Stats {
	superseded := make(map[string]bool)
	for i := range sessions {
		if s := sessions[i].Supersedes; s != "" {
			superseded[s] = true
		}
	}

	stats := Stats{
		Students:     []StudentStats{},
		Sessions:     []SessionStats{},
		BelowMinimum: []StudentStats{},
	}
	index := make(map[string]int)

	for i := range sessions {
		s := &sessions[i]
		if superseded[s.ID] {
			continue
		}
		stats.TotalSessions++

		t := s.Tally()
		stats.Sessions = append(stats.Sessions, SessionStats{
			ID:         s.ID,
			Date:       s.Date,
			Time:       s.Time,
			Subject:    s.Subject,
			TimeSlot:   s.TimeSlot,
			Present:    t.Present,
			Total:      t.Total,
			Percentage: percentage(t.Present, t.Total),
		})

		for _, r := range s.Records {
			n, ok := index[r.StudentID]
			if !ok {
				n = len(stats.Students)
				index[r.StudentID] = n
				stats.Students = append(stats.Students, StudentStats{
					StudentID:   r.StudentID,
					StudentName: r.StudentName,
				})
			}
			st := &stats.Students[n]
			st.Total++
			if r.Status == StatusPresent {
				st.Present++
			} else {
				st.Absent++
			}
		}
	}

	for i := range stats.Students {
		st := &stats.Students[i]
		st.Percentage = percentage(st.Present, st.Total)
		if st.Percentage < minPercentage {
			stats.BelowMinimum = append(stats.BelowMinimum, *st)
		}
	}
	return stats
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
