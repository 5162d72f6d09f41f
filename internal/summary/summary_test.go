package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTwoIsotopeSession(t *testing.T) {
	t.Parallel()

	// Cs-137 0.002 g, Co-60 0.001 g: the reference dashboard session.
	estimates := []Estimate{
		{ParentIsotope: "Cs-137", MassGrams: 0.002},
		{ParentIsotope: "Co-60", MassGrams: 0.001},
	}

	s := Compute(7, estimates)

	assert.InDelta(t, 0.003, s.TotalMassGrams, 1e-12)
	assert.Equal(t, 7, s.TotalDetections)
	assert.Equal(t, 2, s.UniqueIsotopes)
	assert.Equal(t, "Cs-137", s.DominantIsotope)
	assert.InDelta(t, 0.667, s.MassDistribution["Cs-137"], 0.001)
	assert.InDelta(t, 0.333, s.MassDistribution["Co-60"], 0.001)
}

func TestComputeDistributionSumsToOne(t *testing.T) {
	t.Parallel()

	estimates := []Estimate{
		{ParentIsotope: "U-235", MassGrams: 1.5},
		{ParentIsotope: "U-238", MassGrams: 120.0},
		{ParentIsotope: "Pu-239", MassGrams: 0.004},
		{ParentIsotope: "Am-241", MassGrams: 0.02},
	}

	s := Compute(42, estimates)

	var sum float64
	for _, fraction := range s.MassDistribution {
		sum += fraction
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, "U-238", s.DominantIsotope)
}

func TestComputeDominantIsotopeTieBreak(t *testing.T) {
	t.Parallel()

	// Equal masses are realistic with identical estimates, the
	// lexicographically smallest name must win regardless of order.
	forward := Compute(0, []Estimate{
		{ParentIsotope: "Cs-137", MassGrams: 0.5},
		{ParentIsotope: "Co-60", MassGrams: 0.5},
	})
	reversed := Compute(0, []Estimate{
		{ParentIsotope: "Co-60", MassGrams: 0.5},
		{ParentIsotope: "Cs-137", MassGrams: 0.5},
	})

	assert.Equal(t, "Co-60", forward.DominantIsotope)
	assert.Equal(t, forward.DominantIsotope, reversed.DominantIsotope)
}

func TestComputeEmptySession(t *testing.T) {
	t.Parallel()

	s := Compute(0, nil)

	assert.Zero(t, s.TotalMassGrams)
	assert.Zero(t, s.TotalDetections)
	assert.Zero(t, s.UniqueIsotopes)
	assert.Empty(t, s.DominantIsotope)
	assert.Empty(t, s.MassDistribution)
}

func TestComputeZeroTotalMass(t *testing.T) {
	t.Parallel()

	s := Compute(3, []Estimate{
		{ParentIsotope: "Cs-137", MassGrams: 0},
		{ParentIsotope: "Co-60", MassGrams: 0},
	})

	assert.Zero(t, s.TotalMassGrams)
	assert.Equal(t, 2, s.UniqueIsotopes)
	// Fractions are undefined when there is no mass, never zero entries.
	assert.Empty(t, s.MassDistribution)
}

func TestComputeIdempotent(t *testing.T) {
	t.Parallel()

	estimates := []Estimate{
		{ParentIsotope: "Co-60", MassGrams: 0.25},
		{ParentIsotope: "Cs-137", MassGrams: 0.75},
	}

	first := Compute(5, estimates)
	second := Compute(5, estimates)
	assert.Equal(t, first, second)
}

func TestDistributionRoundTrip(t *testing.T) {
	t.Parallel()

	s := Compute(2, []Estimate{
		{ParentIsotope: "Cs-137", MassGrams: 0.002},
		{ParentIsotope: "Co-60", MassGrams: 0.001},
	})

	data, err := MarshalDistribution(s.MassDistribution)
	require.NoError(t, err)

	restored, err := UnmarshalDistribution(data)
	require.NoError(t, err)
	assert.Equal(t, s.MassDistribution, restored)
}

func TestMarshalDistributionEmpty(t *testing.T) {
	t.Parallel()

	data, err := MarshalDistribution(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", data)

	restored, err := UnmarshalDistribution("")
	require.NoError(t, err)
	assert.Empty(t, restored)
}
