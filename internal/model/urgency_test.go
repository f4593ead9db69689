package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUrgencyCode(t *testing.T) {
	for _, valid := range []string{"D1", "D2", "D7", "D3"} {
		c, err := ParseUrgencyCode(valid)
		require.NoError(t, err)
		assert.Equal(t, UrgencyCode(valid), c)
		assert.True(t, c.Valid())
	}

	for _, invalid := range []string{"", "D4", "d1", "EMERGENCY"} {
		_, err := ParseUrgencyCode(invalid)
		assert.Error(t, err, "code %q", invalid)
	}
}

func TestUrgencyOrdering(t *testing.T) {
	assert.True(t, CodeEmergency.MoreUrgentThan(CodeUrgency))
	assert.True(t, CodeUrgency.MoreUrgentThan(CodeLowComplexity))
	assert.True(t, CodeLowComplexity.MoreUrgentThan(CodeConsult))
	assert.False(t, CodeConsult.MoreUrgentThan(CodeEmergency))
	assert.False(t, CodeEmergency.MoreUrgentThan(CodeEmergency))

	// Unknown codes rank below every valid code.
	assert.True(t, CodeConsult.MoreUrgentThan(UrgencyCode("D9")))
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance(CodeEmergency, CodeEmergency))
	assert.Equal(t, 1, Distance(CodeEmergency, CodeUrgency))
	assert.Equal(t, 3, Distance(CodeEmergency, CodeConsult))
	assert.Equal(t, 3, Distance(CodeConsult, CodeEmergency), "distance is symmetric")
	assert.Equal(t, 1, Distance(CodeLowComplexity, CodeConsult))
}

func TestMoreUrgent(t *testing.T) {
	assert.Equal(t, CodeEmergency, MoreUrgent(CodeEmergency, CodeConsult))
	assert.Equal(t, CodeEmergency, MoreUrgent(CodeConsult, CodeEmergency))
	assert.Equal(t, CodeUrgency, MoreUrgent(CodeUrgency, CodeUrgency))
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "EMERGENCY", CodeEmergency.Category())
	assert.Equal(t, "URGENCY", CodeUrgency.Category())
	assert.Equal(t, "LOW COMPLEXITY URGENCY", CodeLowComplexity.Category())
	assert.Equal(t, "PRIORITY CONSULT", CodeConsult.Category())
	assert.Equal(t, "UNCLASSIFIED", UrgencyCode("D9").Category())
}

func TestAllCodesMostUrgentFirst(t *testing.T) {
	codes := AllCodes()
	require.Len(t, codes, 4)
	for i := 1; i < len(codes); i++ {
		assert.True(t, codes[i-1].MoreUrgentThan(codes[i]))
	}
}

func TestIsLowAcuity(t *testing.T) {
	assert.False(t, CodeEmergency.IsLowAcuity())
	assert.False(t, CodeUrgency.IsLowAcuity())
	assert.True(t, CodeLowComplexity.IsLowAcuity())
	assert.True(t, CodeConsult.IsLowAcuity())
	assert.ElementsMatch(t, []UrgencyCode{CodeLowComplexity, CodeConsult}, LowAcuityCodes())
}
