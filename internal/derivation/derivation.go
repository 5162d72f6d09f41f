// Package derivation holds the shared derivation rule for relative
// uncertainties. Every write path that touches a magnitude/uncertainty
// pair must go through Relative so derived fields never drift from
// their source fields.
package derivation

// Relative computes uncertainty divided by magnitude. When the magnitude
// is not positive the relative uncertainty is undefined and nil is
// returned; it is never coerced to zero, which would misrepresent a
// missing measurement as a perfect one.
func Relative(magnitude, uncertainty float64) *float64 {
	if magnitude <= 0 {
		return nil
	}
	rel := uncertainty / magnitude
	return &rel
}

// Defined reports whether a derived relative uncertainty is present.
func Defined(rel *float64) bool {
	return rel != nil
}

// Value returns the derived value and whether it is defined, for callers
// that prefer the comma-ok form over a pointer check.
func Value(rel *float64) (float64, bool) {
	if rel == nil {
		return 0, false
	}
	return *rel, true
}
