// Package summary computes per-session aggregate figures from a
// session's mass estimates and detection records. The computation is a
// pure function of its inputs so the stored summary can always be
// recomputed from the live records without drift.
package summary

import (
	"encoding/json"
	"fmt"
)

// Estimate is the slice of a mass estimate record the summarizer needs.
type Estimate struct {
	ParentIsotope string
	MassGrams     float64
}

// Summary holds the aggregate figures for one analysis session.
//
// UniqueIsotopes counts distinct parent isotopes among the session's
// mass estimates, the same population DominantIsotope and
// MassDistribution are computed from. A detected isotope without a mass
// estimate does not contribute.
type Summary struct {
	TotalMassGrams   float64
	TotalDetections  int
	UniqueIsotopes   int
	DominantIsotope  string
	MassDistribution map[string]float64
}

// Compute builds a summary from a session's detection count and mass
// estimates. Deterministic: when two isotopes tie for the largest mass
// the lexicographically smallest name wins. When total mass is zero the
// distribution is empty, fractions are undefined rather than zero.
func Compute(detectionCount int, estimates []Estimate) Summary {
	s := Summary{
		TotalDetections:  detectionCount,
		MassDistribution: make(map[string]float64, len(estimates)),
	}

	seen := make(map[string]struct{}, len(estimates))
	for i := range estimates {
		est := &estimates[i]
		s.TotalMassGrams += est.MassGrams
		if _, dup := seen[est.ParentIsotope]; !dup {
			seen[est.ParentIsotope] = struct{}{}
			s.UniqueIsotopes++
		}
	}

	var dominantMass float64
	for i := range estimates {
		est := &estimates[i]
		switch {
		case s.DominantIsotope == "",
			est.MassGrams > dominantMass,
			est.MassGrams == dominantMass && est.ParentIsotope < s.DominantIsotope:
			s.DominantIsotope = est.ParentIsotope
			dominantMass = est.MassGrams
		}
	}

	if s.TotalMassGrams > 0 {
		for i := range estimates {
			est := &estimates[i]
			s.MassDistribution[est.ParentIsotope] = est.MassGrams / s.TotalMassGrams
		}
	}

	return s
}

// MarshalDistribution serializes a mass distribution for storage.
func MarshalDistribution(distribution map[string]float64) (string, error) {
	if len(distribution) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(distribution)
	if err != nil {
		return "", fmt.Errorf("marshaling mass distribution: %w", err)
	}
	return string(data), nil
}

// UnmarshalDistribution deserializes a stored mass distribution.
func UnmarshalDistribution(data string) (map[string]float64, error) {
	distribution := make(map[string]float64)
	if data == "" {
		return distribution, nil
	}
	if err := json.Unmarshal([]byte(data), &distribution); err != nil {
		return nil, fmt.Errorf("unmarshaling mass distribution: %w", err)
	}
	return distribution, nil
}
