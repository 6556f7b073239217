package allocation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/haunted-house-queue/internal/model"
)

func TestProject(t *testing.T) {
	spots := []model.Spot{
		{Status: model.SpotAvailable},
		{Status: model.SpotAvailable},
		{Status: model.SpotOccupied},
		{Status: model.SpotReserved},
	}
	assert.Equal(t, Stats{AvailableSpots: 2, OccupiedSpots: 1, ReservedSpots: 1, TotalSpots: 4}, Project(spots))
	assert.Equal(t, Stats{}, Project(nil))
}

func TestNewReservationCodeAlphabet(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		code, err := NewReservationCode()
		require.NoError(t, err)
		require.Len(t, code, codeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), code)
		}
		seen[code] = true
	}
	// 33^6 codes; a collision among 1000 draws is vanishingly unlikely.
	assert.Len(t, seen, 1000)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeCode("  ab12cd "))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(reject(CodeNotFound, "x")))
	assert.Equal(t, CodeDatabaseError, CodeOf(assert.AnError))
	assert.True(t, IsRejection(reject(CodeConflict, "x")))
	assert.False(t, IsRejection(assert.AnError))
}
