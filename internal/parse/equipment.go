package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"caex-inspector-backend/config"
	"caex-inspector-backend/internal/model"
)

var (
	numberRe = regexp.MustCompile(`(\d+)\s*$`)
	prefixRe = regexp.MustCompile(`(?i)^\s*(?:caex|camion|camión|equipo)?\s*[-#]?\s*`)
)

// ParsedEquipment holds the structured data parsed from a truck label.
type ParsedEquipment struct {
	Number int
	Model  model.EquipmentModel
}

// ParseNumber extracts the truck number from labels such as "CAEX-301",
// "#301", "Camión 301" or plain "301".
func ParseNumber(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	// Collapse whitespace so "CAEX  - 301" parses like "CAEX-301".
	s = regexp.MustCompile(`\s+`).ReplaceAllString(s, " ")

	loc := prefixRe.FindStringIndex(s)
	rest := s
	if loc != nil {
		rest = s[loc[1]:]
	}

	m := numberRe.FindStringSubmatch(rest)
	if m == nil || strings.TrimSpace(rest) != m[0] {
		return 0, fmt.Errorf("unable to parse equipment number from %q", raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unable to parse equipment number from %q", raw)
	}
	return n, nil
}

// ValidateNumber checks that number falls inside the configured range of m.
// A model without a configured range accepts any positive number.
func ValidateNumber(number int, m model.EquipmentModel, ranges map[string]config.IdentifierRange) error {
	if !m.IsKnown() {
		return fmt.Errorf("unknown equipment model %q", m)
	}
	r, ok := ranges[string(m)]
	if !ok {
		if number <= 0 {
			return fmt.Errorf("equipment number must be positive, got %d", number)
		}
		return nil
	}
	if number < r.Min || number > r.Max {
		return fmt.Errorf("equipment number %d is outside the %s range %d-%d", number, m, r.Min, r.Max)
	}
	return nil
}

// ModelForNumber returns the only model whose range contains number.
func ModelForNumber(number int, ranges map[string]config.IdentifierRange) (model.EquipmentModel, error) {
	var found []model.EquipmentModel
	for _, m := range model.KnownModels {
		if r, ok := ranges[string(m)]; ok && number >= r.Min && number <= r.Max {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", fmt.Errorf("equipment number %d does not belong to any model range", number)
	default:
		return "", fmt.Errorf("equipment number %d matches several models: %v", number, found)
	}
}

// ParseEquipment parses a truck label and resolves its model. An explicit
// model is validated against its range; an empty one is inferred.
func ParseEquipment(raw string, m model.EquipmentModel, ranges map[string]config.IdentifierRange) (ParsedEquipment, error) {
	n, err := ParseNumber(raw)
	if err != nil {
		return ParsedEquipment{}, err
	}
	if m == "" {
		inferred, err := ModelForNumber(n, ranges)
		if err != nil {
			return ParsedEquipment{}, err
		}
		return ParsedEquipment{Number: n, Model: inferred}, nil
	}
	if err := ValidateNumber(n, m, ranges); err != nil {
		return ParsedEquipment{}, err
	}
	return ParsedEquipment{Number: n, Model: m}, nil
}
