package identity

import "math/rand/v2"

var (
	// Colors is the first half of every generated display name.
	Colors = []string{"Red", "Blue", "Green", "Purple", "Orange", "Pink", "Yellow", "Cyan"}
	// Animals is the second half of every generated display name.
	Animals = []string{"Panda", "Tiger", "Eagle", "Fox", "Wolf", "Bear", "Lion", "Shark"}
)

// RandomSource picks an index in [0, n).
type RandomSource interface {
	IntN(n int) int
}

type randomFunc func(n int) int

func (f randomFunc) IntN(n int) int {
	return f(n)
}

func defaultRandomSource() RandomSource {
	return randomFunc(rand.IntN)
}

// GenerateUsername returns a <Color><Animal> display name. Collisions between clients are expected.
func GenerateUsername(source RandomSource) string {
	if source == nil {
		source = defaultRandomSource()
	}
	return Colors[source.IntN(len(Colors))] + Animals[source.IntN(len(Animals))]
}
