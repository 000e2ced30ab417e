package matching

import (
	"fmt"
)

type Strength int

const (
	None Strength = iota
	Good
	Perfect
)

func (s Strength) String() string {
	switch s {
	case Good:
		return "good"
	case Perfect:
		return "perfect"
	default:
		return "none"
	}
}

func (s Strength) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strength) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*s = None
	case "good":
		*s = Good
	case "perfect":
		*s = Perfect
	default:
		return fmt.Errorf("unknown match strength %q", text)
	}
	return nil
}

// Evaluate classifies a pair of answers. It is symmetric and treats
// Unanswered as not positive.
func Evaluate(a, b Value) Strength {
	if !a.Positive() || !b.Positive() {
		return None
	}
	if a == Enthusiastic && b == Enthusiastic {
		return Perfect
	}
	return Good
}
