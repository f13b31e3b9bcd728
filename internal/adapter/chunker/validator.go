package chunker

import "docingest/internal/domain"

// Validate compares each adjacent pair of chunks and records the holes and
// overlaps between them. Only gaps make a chunk set invalid.
func Validate(chunks []domain.Chunk) domain.ValidationReport {
	report := domain.ValidationReport{
		Gaps:     []int{},
		Overlaps: []int{},
	}
	for i := 0; i+1 < len(chunks); i++ {
		cur, next := chunks[i], chunks[i+1]
		switch {
		case next.StartChar > cur.EndChar:
			report.Gaps = append(report.Gaps, next.StartChar-cur.EndChar)
		case next.StartChar < cur.EndChar:
			report.Overlaps = append(report.Overlaps, cur.EndChar-next.StartChar)
		}
	}
	report.IsValid = len(report.Gaps) == 0
	return report
}
