package fees

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ecobridge/internal/apperror"
	"ecobridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scheduleYAML = `ranges:
  - min_amount: 1
    max_amount: 10
    fixed_charge: 0.50
    is_active: true
  - min_amount: 10.01
    max_amount: 50
    fixed_charge: 1.50
    is_active: true
  - min_amount: 50.01
    max_amount: 100000
    is_percentage: true
    percentage_rate: 3
    additional_fee: 0.50
    is_active: true
`

type recordingWriter struct {
	ranges []models.FeeRange
}

func (w *recordingWriter) ReplaceFeeRanges(ctx context.Context, ranges []models.FeeRange) error {
	w.ranges = ranges
	return nil
}

func TestParseSchedule(t *testing.T) {
	schedule, err := ParseSchedule([]byte(scheduleYAML))
	require.NoError(t, err)
	require.Len(t, schedule.Ranges, 3)

	top := schedule.Ranges[2]
	assert.True(t, top.IsPercentage)
	assert.True(t, top.PercentageRate.Equal(d("3")))
	assert.True(t, top.AdditionalFee.Equal(d("0.50")))
	assert.True(t, schedule.Ranges[1].MinAmount.Equal(d("10.01")))
}

func TestParseSchedule_RejectsOverlap(t *testing.T) {
	overlapping := `ranges:
  - {min_amount: 1, max_amount: 20, fixed_charge: 1, is_active: true}
  - {min_amount: 10, max_amount: 50, fixed_charge: 2, is_active: true}
`
	_, err := ParseSchedule([]byte(overlapping))
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestParseSchedule_RejectsInvertedBounds(t *testing.T) {
	_, err := ParseSchedule([]byte("ranges:\n  - {min_amount: 10, max_amount: 1, is_active: true}\n"))
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fees.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scheduleYAML), 0o600))

	w := &recordingWriter{}
	n, err := Import(context.Background(), path, w)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, w.ranges, 3)
}

func TestLoadSchedule_MissingFile(t *testing.T) {
	_, err := LoadSchedule(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
