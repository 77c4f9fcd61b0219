package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pressiotrack/internal/models"
)

func TestClassifyDefaultBaseline(t *testing.T) {
	base := models.DefaultBaseline(1)

	tests := []struct {
		name      string
		systolic  int
		diastolic int
		want      models.Status
	}{
		{"systolic above high threshold", 140, 80, models.StatusHigh},
		{"systolic at high threshold", 135, 80, models.StatusHigh},
		{"diastolic at high threshold", 120, 90, models.StatusHigh},
		{"systolic past threshold with normal diastolic", 139, 89, models.StatusHigh},
		{"just below high thresholds", 134, 89, models.StatusNormal},
		{"both low", 100, 50, models.StatusLow},
		{"systolic exactly baseline minus margin", 105, 70, models.StatusNormal},
		{"systolic one below low threshold", 104, 80, models.StatusLow},
		{"diastolic one below low threshold", 120, 69, models.StatusLow},
		{"hypertensive reading", 150, 95, models.StatusHigh},
		{"extreme input", 400, 300, models.StatusHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.systolic, tt.diastolic, base))
		})
	}
}

func TestClassifyPersonalBaseline(t *testing.T) {
	base := models.Baseline{UserID: 1, Systolic: 100, Diastolic: 60}

	assert.Equal(t, models.StatusHigh, Classify(115, 60, base))
	assert.Equal(t, models.StatusNormal, Classify(114, 69, base))
	assert.Equal(t, models.StatusLow, Classify(84, 60, base))
}

func TestClassifyHighWinsOverLow(t *testing.T) {
	// systolic far above, diastolic far below: both branches match.
	base := models.Baseline{Systolic: 120, Diastolic: 80}

	assert.Equal(t, models.StatusHigh, Classify(200, 40, base))
}

func TestClassifyDeterministic(t *testing.T) {
	base := models.DefaultBaseline(7)
	first := Classify(133, 85, base)

	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(133, 85, base))
	}
}
