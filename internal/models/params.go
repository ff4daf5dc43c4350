package models

import "fmt"

// Seniority is the level of the role being interviewed for.
type Seniority string

const (
	SeniorityJunior Seniority = "junior"
	SeniorityMid    Seniority = "mid"
	SenioritySenior Seniority = "senior"
	SeniorityStaff  Seniority = "staff"
)

// DomainParameters describe the interview being run.
type DomainParameters struct {
	Role       string    `json:"role" yaml:"role"`
	Seniority  Seniority `json:"seniority" yaml:"seniority"`
	Difficulty float64   `json:"difficulty" yaml:"difficulty"`
}

// Validate reports whether the parameters are usable.
func (p DomainParameters) Validate() error {
	switch p.Seniority {
	case SeniorityJunior, SeniorityMid, SenioritySenior, SeniorityStaff:
	case "":
		return fmt.Errorf("seniority is required")
	default:
		return fmt.Errorf("unknown seniority %q", p.Seniority)
	}
	if p.Difficulty < 0 || p.Difficulty > 1 {
		return fmt.Errorf("difficulty %.2f out of range [0,1]", p.Difficulty)
	}
	return nil
}
