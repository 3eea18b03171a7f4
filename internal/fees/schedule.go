package fees

import (
	"context"
	"fmt"
	"os"

	"ecobridge/internal/apperror"
	"ecobridge/internal/models"
	"ecobridge/internal/repository"

	"gopkg.in/yaml.v3"
)

// LoadSchedule reads a YAML fee schedule file and validates it.
func LoadSchedule(path string) (*models.FeeSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading fee schedule %s: %w", path, err)
	}
	return ParseSchedule(data)
}

// ParseSchedule decodes and validates a YAML fee schedule.
func ParseSchedule(data []byte) (*models.FeeSchedule, error) {
	var schedule models.FeeSchedule
	if err := yaml.Unmarshal(data, &schedule); err != nil {
		return nil, fmt.Errorf("error parsing fee schedule: %w", err)
	}
	if err := Validate(schedule.Ranges); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// Validate checks that every range is well formed and that active ranges do not overlap.
func Validate(ranges []models.FeeRange) error {
	var prev *models.FeeRange
	for i := range ranges {
		r := ranges[i]
		if r.MinAmount.IsNegative() || r.MaxAmount.LessThan(r.MinAmount) {
			return &apperror.ValidationError{
				Field:  fmt.Sprintf("ranges[%d]", i),
				Reason: fmt.Sprintf("invalid bounds %s..%s", r.MinAmount, r.MaxAmount),
			}
		}
		if r.IsPercentage && r.PercentageRate.IsNegative() {
			return &apperror.ValidationError{Field: fmt.Sprintf("ranges[%d].percentage_rate", i), Reason: "must not be negative"}
		}
		if !r.IsActive {
			continue
		}
		if prev != nil && r.MinAmount.LessThanOrEqual(prev.MaxAmount) {
			return &apperror.ValidationError{
				Field:  fmt.Sprintf("ranges[%d]", i),
				Reason: "active ranges must be ordered by min_amount and must not overlap",
			}
		}
		prev = &ranges[i]
	}
	return nil
}

// Import replaces the stored schedule with the ranges in the file at path.
func Import(ctx context.Context, path string, writer repository.FeeRangeWriter) (int, error) {
	schedule, err := LoadSchedule(path)
	if err != nil {
		return 0, err
	}
	if err := writer.ReplaceFeeRanges(ctx, schedule.Ranges); err != nil {
		return 0, fmt.Errorf("error storing fee schedule: %w", err)
	}
	return len(schedule.Ranges), nil
}
