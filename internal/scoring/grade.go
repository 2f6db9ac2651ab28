package scoring

// GradeFor derives the letter grade shown to founders and investors from an
// overall score.
func GradeFor(overall int) string {
	switch {
	case overall >= 90:
		return "A+"
	case overall >= 80:
		return "A"
	case overall >= 70:
		return "B+"
	case overall >= 60:
		return "B"
	case overall >= 50:
		return "C"
	case overall >= 40:
		return "D"
	default:
		return "F"
	}
}
