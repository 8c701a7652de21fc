package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceZeroForSamePoint(t *testing.T) {
	points := []Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: -23.099, Lon: -45.707},
		{Lat: 89.9, Lon: 179.9},
		{Lat: -89.9, Lon: -179.9},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, Distance(p, p))
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := Coordinate{Lat: -23.099, Lon: -45.707}
	b := Coordinate{Lat: -23.090, Lon: -45.720}

	d1 := Distance(a, b)
	d2 := Distance(b, a)
	assert.InEpsilon(t, d1, d2, 1e-6)
}

func TestDistanceOneDegreeLatitude(t *testing.T) {
	// 1 degree of latitude is about 111,195 m on a 6,371 km sphere.
	a := Coordinate{Lat: 0, Lon: 0}
	b := Coordinate{Lat: 1, Lon: 0}

	d := Distance(a, b)
	assert.InDelta(t, 111195, d, 111195*0.005)
}

func TestDistanceDisplacedPoint(t *testing.T) {
	// ~0.009 degrees of latitude is roughly 1 km.
	center := Coordinate{Lat: -23.099, Lon: -45.707}
	displaced := Coordinate{Lat: -23.099 + 0.009, Lon: -45.707}

	d := Distance(center, displaced)
	assert.Greater(t, d, 900.0)
	assert.Less(t, d, 1100.0)
}

func TestCoordinateValid(t *testing.T) {
	valid := []Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 90, Lon: 180},
		{Lat: -90, Lon: -180},
		{Lat: -23.099, Lon: -45.707},
	}
	for _, c := range valid {
		assert.True(t, c.Valid(), "expected %+v to be valid", c)
	}

	invalid := []Coordinate{
		{Lat: 90.1, Lon: 0},
		{Lat: -90.1, Lon: 0},
		{Lat: 0, Lon: 180.1},
		{Lat: 0, Lon: -180.1},
		{Lat: math.NaN(), Lon: 0},
		{Lat: 0, Lon: math.NaN()},
	}
	for _, c := range invalid {
		assert.False(t, c.Valid(), "expected %+v to be invalid", c)
	}
}
