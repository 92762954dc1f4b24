package enums

// LineOutcome tags the per-line result of a purchasing transition.
type LineOutcome string

const (
	LineOutcomeApplied LineOutcome = "applied"
	LineOutcomeSkipped LineOutcome = "skipped"
)

func (o LineOutcome) String() string {
	return string(o)
}
