package stamp

// randInt returns a uniform integer in [min, max); min when the range is
// empty or inverted.
func (g *Generator) randInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + g.intN(max-min)
}

// appendSuffix appends SuffixLen random bytes drawn from [CharMin, CharMax).
func (g *Generator) appendSuffix(b []byte) []byte {
	for i := 0; i < SuffixLen; i++ {
		b = append(b, byte(g.randInt(CharMin, CharMax)))
	}
	return b
}

// RandInt returns a uniform integer in [min, max) drawn from the default
// generator's randomness. When max <= min the range is treated as collapsed
// and min is returned.
func RandInt(min, max int) int {
	return defaultGenerator.randInt(min, max)
}
