package optimizer

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Mode selects the optimizer of a parfor loop.
type Mode int

const (
	ModeNone Mode = iota
	ModeHeuristic
	ModeRuleBased
	ModeConstrained
)

var modeNames = []string{
	ModeNone:        "none",
	ModeHeuristic:   "heuristic",
	ModeRuleBased:   "rulebased",
	ModeConstrained: "constrained",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses the optimization mode declared by a parfor loop.
// The empty string selects the rule-based optimizer.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(s))
	if name == "" {
		return ModeRuleBased, nil
	}
	for m, n := range modeNames {
		if name == n {
			return Mode(m), nil
		}
	}
	best, dist := "", len(name)
	for _, n := range modeNames {
		if d := levenshtein.ComputeDistance(name, n); d < dist {
			best, dist = n, d
		}
	}
	if best != "" && dist <= 3 {
		return ModeNone, fmt.Errorf("unknown optimizer mode %q (did you mean %q?)", s, best)
	}
	return ModeNone, fmt.Errorf("unknown optimizer mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	mode, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
