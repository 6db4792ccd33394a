package game

import (
	"math"
	"math/rand/v2"
)

const (
	SpawnSafeMin     = -94.0
	SpawnSafeMax     = 94.0
	SpawnSeparation  = 10.0
	MaxSpawnAttempts = 100
)

type SpawnPoint struct {
	Position Vec3
	Yaw      float64
}

type SpawnResult struct {
	Tagger   SpawnPoint
	Runner   SpawnPoint
	Attempts int
	// Fallback is set when no collision free candidate was found and the
	// last one was used anyway.
	Fallback bool
}

// NewSpawnRand returns the generator both peers derive from a shared seed so
// they compute the same spawn.
func NewSpawnRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// FacingYaw is the yaw that points from `from` towards `to` on the XZ plane.
func FacingYaw(from, to Vec3) float64 {
	return math.Atan2(to.X-from.X, to.Z-from.Z)
}

// Spawn places the two players SpawnSeparation apart around a random centre
// inside the safe area, each facing the other.
func Spawn(rng *rand.Rand, w World) SpawnResult {
	var result SpawnResult

	for result.Attempts < MaxSpawnAttempts {
		result.Attempts++

		centreX := SpawnSafeMin + rng.Float64()*(SpawnSafeMax-SpawnSafeMin)
		centreZ := SpawnSafeMin + rng.Float64()*(SpawnSafeMax-SpawnSafeMin)
		angle := rng.Float64() * 2 * math.Pi
		dx := math.Cos(angle) * SpawnSeparation / 2
		dz := math.Sin(angle) * SpawnSeparation / 2

		runner := onGround(w, centreX+dx, centreZ+dz)
		tagger := onGround(w, centreX-dx, centreZ-dz)

		result.Runner.Position = runner
		result.Tagger.Position = tagger

		if !w.IntersectsAny(BoxAround(runner)) && !w.IntersectsAny(BoxAround(tagger)) {
			result.Fallback = false
			break
		}
		result.Fallback = true
	}

	result.Tagger.Yaw = FacingYaw(result.Tagger.Position, result.Runner.Position)
	result.Runner.Yaw = FacingYaw(result.Runner.Position, result.Tagger.Position)
	return result
}

func onGround(w World, x, z float64) Vec3 {
	return Vec3{X: x, Y: w.HeightAt(x, z) + PlayerSize/2, Z: z}
}
