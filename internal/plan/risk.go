package plan

// RiskType categorizes what a risky step can damage.
type RiskType string

const (
	RiskDataLoss            RiskType = "data_loss"
	RiskPerformance         RiskType = "performance"
	RiskConstraintViolation RiskType = "constraint_violation"
	RiskDowntime            RiskType = "downtime"
)

// Severity orders risks from advisory to blocking. Critical risks block
// execution unless the caller explicitly overrides them.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool { return s >= min }

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	for sev, name := range severityNames {
		if name == string(text) {
			*s = sev
			return nil
		}
	}
	*s = SeverityLow
	return nil
}

// Risk is an advisory annotation on a plan. The caller decides whether to
// proceed; only critical severity blocks execution by default.
type Risk struct {
	Type        RiskType `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Entities    []string `json:"entities"`
}
