package math

import (
	"math"
	"math/rand"
)

// Oscillator generates frames around a base structure.
// Every coordinate fluctuates with a normal deviate of scale Noise,
// and the whole structure moves along a collective sine mode of amplitude Amplitude.
type Oscillator struct {
	Base      []float64
	Noise     float64
	Amplitude float64
	Period    float64
	// Anisotropy scales the noise of coordinate j by 1 + Anisotropy*(j mod 3).
	Anisotropy float64
}

// Frames samples n frames from the oscillator.
func (o Oscillator) Frames(rng *rand.Rand, n int) [][]float64 {
	d := len(o.Base)
	direction := make([]float64, d)
	for j := range direction {
		direction[j] = SineEvolve(j+1, 1)
	}
	frames := make([][]float64, n)
	for k := 0; k < n; k++ {
		f := make([]float64, d)
		shift := o.Amplitude * SineEvolve(k, o.period())
		for j := 0; j < d; j++ {
			scale := o.Noise * (1 + o.Anisotropy*float64(j%3))
			f[j] = o.Base[j] + shift*direction[j] + scale*rng.NormFloat64()
		}
		frames[k] = f
	}
	return frames
}

func (o Oscillator) period() float64 {
	if o.Period == 0 {
		return 0.1
	}
	return o.Period
}

// Structure generates a random base structure of the given number of atoms,
// laid out along a chain with the given bond length.
func Structure(rng *rand.Rand, atoms int, bond float64) []float64 {
	base := make([]float64, 3*atoms)
	var x, y, z float64
	for a := 0; a < atoms; a++ {
		base[3*a], base[3*a+1], base[3*a+2] = x, y, z
		theta := rng.Float64() * math.Pi
		phi := rng.Float64() * 2 * math.Pi
		x += bond * math.Sin(theta) * math.Cos(phi)
		y += bond * math.Sin(theta) * math.Sin(phi)
		z += bond * math.Cos(theta)
	}
	return base
}

// SineEvolve evaluates sin(i*p).
func SineEvolve(i int, p float64) float64 {
	return math.Sin(float64(i) * p)
}

// Displace applies a random rotation and a random translation of at most shift to the frame.
func Displace(rng *rand.Rand, frame []float64, shift float64) []float64 {
	alpha, beta, gamma := rng.Float64()*2*math.Pi, rng.Float64()*math.Pi, rng.Float64()*2*math.Pi
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	cb, sb := math.Cos(beta), math.Sin(beta)
	cg, sg := math.Cos(gamma), math.Sin(gamma)
	// z-x-z euler rotation
	r := [3][3]float64{
		{ca*cg - sa*cb*sg, -ca*sg - sa*cb*cg, sa * sb},
		{sa*cg + ca*cb*sg, -sa*sg + ca*cb*cg, -ca * sb},
		{sb * sg, sb * cg, cb},
	}
	t := [3]float64{shift * rng.Float64(), shift * rng.Float64(), shift * rng.Float64()}
	out := make([]float64, len(frame))
	for a := 0; a < len(frame)/3; a++ {
		for i := 0; i < 3; i++ {
			out[3*a+i] = r[i][0]*frame[3*a] + r[i][1]*frame[3*a+1] + r[i][2]*frame[3*a+2] + t[i]
		}
	}
	return out
}
