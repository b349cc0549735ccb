package validation

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/greydoubt/cozo/internal/errors"
)

const (
	// Size limits
	MaxNameLength = 255
	MaxColumns    = 1024

	// ParamSigil marks evaluator parameters; catalog names may not use it.
	ParamSigil = "$"
)

// Validator validates names and column lists handed to the catalog
type Validator struct {
	maxNameLength int
	maxColumns    int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxNameLength: MaxNameLength,
		maxColumns:    MaxColumns,
	}
}

// NewValidatorWithLimits creates a validator with custom limits
func NewValidatorWithLimits(maxNameLength, maxColumns int) *Validator {
	if maxNameLength <= 0 {
		maxNameLength = MaxNameLength
	}
	if maxColumns <= 0 {
		maxColumns = MaxColumns
	}
	return &Validator{
		maxNameLength: maxNameLength,
		maxColumns:    maxColumns,
	}
}

// ValidateName validates a definition or column name
func (v *Validator) ValidateName(name string) error {
	if name == "" {
		return errors.InvalidName(name, "name cannot be empty")
	}

	if len(name) > v.maxNameLength {
		return errors.InvalidName(name, fmt.Sprintf("name exceeds maximum length of %d bytes", v.maxNameLength))
	}

	// Parameters live in their own namespace
	if strings.HasPrefix(name, ParamSigil) {
		return errors.InvalidName(name, "name cannot start with the parameter sigil")
	}

	for i, r := range name {
		if unicode.IsControl(r) {
			return errors.InvalidName(name, "name cannot contain control characters")
		}
		if !isNameRune(r, i == 0) {
			return errors.InvalidName(name, fmt.Sprintf("invalid character %q", r))
		}
	}

	return nil
}

// ValidateParamName validates an evaluator parameter name such as "$limit"
func (v *Validator) ValidateParamName(name string) error {
	if !strings.HasPrefix(name, ParamSigil) {
		return errors.InvalidName(name, "parameter must start with "+ParamSigil)
	}
	rest := strings.TrimPrefix(name, ParamSigil)
	if rest == "" {
		return errors.InvalidName(name, "parameter name cannot be empty")
	}
	if len(name) > v.maxNameLength {
		return errors.InvalidName(name, fmt.Sprintf("name exceeds maximum length of %d bytes", v.maxNameLength))
	}
	for i, r := range rest {
		if !isNameRune(r, i == 0) {
			return errors.InvalidName(name, fmt.Sprintf("invalid character %q", r))
		}
	}
	return nil
}

// ValidateColumns checks every column name and rejects duplicates. All
// offending names are reported at once.
func (v *Validator) ValidateColumns(names []string) error {
	if len(names) > v.maxColumns {
		return errors.InvalidArgument(
			fmt.Sprintf("too many columns: %d > %d", len(names), v.maxColumns),
			nil,
		)
	}

	seen := make(map[string]int, len(names))
	for _, n := range names {
		if err := v.ValidateName(n); err != nil {
			return err
		}
		seen[n]++
	}

	var dups []string
	for n, count := range seen {
		if count > 1 {
			dups = append(dups, n)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return errors.DuplicateNames(dups)
	}
	return nil
}

func isNameRune(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	return !first && unicode.IsDigit(r)
}
