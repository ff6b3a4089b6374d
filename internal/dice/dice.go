// Package dice provides parsing and rolling of standard dice notation
// (e.g. "2d20+5") with advantage/disadvantage support for d20 rolls.
package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// Bounds on a single roll.
const (
	MinDice = 1
	MaxDice = 100
	MinSize = 2
	MaxSize = 100
)

// Common errors for dice operations.
var (
	ErrInvalidNotation = errors.New("invalid dice notation, use format like '2d20+5'")
	ErrDiceCount       = errors.New("number of dice must be between 1 and 100")
	ErrDiceSize        = errors.New("dice size must be between 2 and 100")
)

var notationPattern = regexp.MustCompile(`^(\d+)d(\d+)([+-]\d+)?$`)

// Notation is a parsed dice expression.
type Notation struct {
	Count    int
	Size     int
	Modifier int
}

// Parse validates and decomposes a dice expression of the form NdS±M.
func Parse(notation string) (Notation, error) {
	match := notationPattern.FindStringSubmatch(strings.TrimSpace(notation))
	if match == nil {
		return Notation{}, ErrInvalidNotation
	}

	count, _ := strconv.Atoi(match[1])
	size, _ := strconv.Atoi(match[2])
	modifier := 0
	if match[3] != "" {
		modifier, _ = strconv.Atoi(match[3])
	}

	if count < MinDice || count > MaxDice {
		return Notation{}, ErrDiceCount
	}
	if size < MinSize || size > MaxSize {
		return Notation{}, ErrDiceSize
	}

	return Notation{Count: count, Size: size, Modifier: modifier}, nil
}

// Result is the outcome of one roll.
type Result struct {
	Notation     string `json:"notation"`
	Rolls        []int  `json:"rolls"`
	Modifier     int    `json:"modifier"`
	Total        int    `json:"total"`
	Advantage    bool   `json:"advantage,omitempty"`
	Disadvantage bool   `json:"disadvantage,omitempty"`
}

// Roller rolls dice with an injectable randomness source for deterministic tests.
type Roller struct {
	rng *rand.Rand
}

// NewRoller creates a Roller using the given source. A nil source falls back
// to the shared global generator.
func NewRoller(rng *rand.Rand) *Roller {
	return &Roller{rng: rng}
}

func (r *Roller) die(size int) int {
	if r.rng != nil {
		return r.rng.Intn(size) + 1
	}
	return rand.Intn(size) + 1
}

// Roll parses and rolls the notation. Advantage and disadvantage apply only
// to d20 rolls: an extra die is rolled when needed and the higher (advantage)
// or lower (disadvantage) result is kept.
func (r *Roller) Roll(notation string, advantage, disadvantage bool) (*Result, error) {
	parsed, err := Parse(notation)
	if err != nil {
		return nil, err
	}

	rolls := make([]int, 0, parsed.Count)
	for i := 0; i < parsed.Count; i++ {
		rolls = append(rolls, r.die(parsed.Size))
	}

	finalRolls := rolls
	if parsed.Size == 20 && (advantage || disadvantage) {
		if len(rolls) < 2 {
			rolls = append(rolls, r.die(20))
		}
		if advantage {
			finalRolls = []int{max(rolls[0], rolls[1])}
		} else {
			finalRolls = []int{min(rolls[0], rolls[1])}
		}
	}

	total := parsed.Modifier
	for _, roll := range finalRolls {
		total += roll
	}

	return &Result{
		Notation:     notation,
		Rolls:        finalRolls,
		Modifier:     parsed.Modifier,
		Total:        total,
		Advantage:    advantage,
		Disadvantage: disadvantage,
	}, nil
}

// Describe renders the result as a chat message body.
func (res *Result) Describe() string {
	notation := res.Notation
	if res.Advantage {
		notation += " (advantage)"
	} else if res.Disadvantage {
		notation += " (disadvantage)"
	}

	parts := make([]string, len(res.Rolls))
	for i, roll := range res.Rolls {
		parts[i] = strconv.Itoa(roll)
	}
	rolled := strings.Join(parts, ", ")

	modifier := ""
	if res.Modifier > 0 {
		modifier = fmt.Sprintf(" +%d", res.Modifier)
	} else if res.Modifier < 0 {
		modifier = fmt.Sprintf(" %d", res.Modifier)
	}

	return fmt.Sprintf("Rolled %s: %s%s = %d", notation, rolled, modifier, res.Total)
}
