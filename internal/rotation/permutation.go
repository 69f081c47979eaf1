// Package rotation maps calendar days onto a fixed, seeded ordering of the
// problem catalogue.
package rotation

// LCG parameters. They are part of the persisted contract: changing them
// would reassign every calendar day for returning visitors.
const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// lcg is the linear congruential generator driving the shuffle.
type lcg struct {
	state int64
}

func newLCG(seed int64) *lcg {
	// (s*a + c) mod m only depends on s mod m, so reducing up front keeps
	// large millisecond seeds from overflowing.
	s := seed % lcgModulus
	if s < 0 {
		s += lcgModulus
	}
	return &lcg{state: s}
}

// next advances the generator and returns a value in [0, 1).
func (g *lcg) next() float64 {
	g.state = (g.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(g.state) / lcgModulus
}

// BuildPermutation returns a bijection of [0, n) obtained by a Fisher–Yates
// shuffle of the identity sequence. The result depends only on seed and n.
func BuildPermutation(seed int64, n int) []int {
	if n <= 0 {
		return []int{}
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	g := newLCG(seed)
	for i := n - 1; i > 0; i-- {
		j := int(g.next() * float64(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// IsPermutation reports whether p contains each of 0..len(p)-1 exactly once.
func IsPermutation(p []int) bool {
	seen := make([]bool, len(p))
	for _, v := range p {
		if v < 0 || v >= len(p) || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
