package units

import (
	"math"
	"testing"
)

func TestDeg2Rad(t *testing.T) {
	tests := []struct {
		name     string
		deg      float64
		expected float64
	}{
		{"zero", 0.0, 0.0},
		{"right angle", 90.0, math.Pi / 2},
		{"straight angle", 180.0, math.Pi},
		{"full turn", 360.0, 2 * math.Pi},
		{"negative", -90.0, -math.Pi / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Deg2Rad(tt.deg)
			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("Deg2Rad(%f) = %f, want %f", tt.deg, result, tt.expected)
			}
		})
	}
}

func TestRad2DegRoundTrip(t *testing.T) {
	for _, deg := range []float64{0, 1, 30, 45, 90, 123.456, -77.7} {
		got := Rad2Deg(Deg2Rad(deg))
		if math.Abs(got-deg) > 1e-10 {
			t.Errorf("Rad2Deg(Deg2Rad(%f)) = %f, want %f", deg, got, deg)
		}
	}
}

func TestWaveNumber(t *testing.T) {
	tests := []struct {
		name     string
		freqHz   float64
		expected float64
	}{
		{"1 GHz", 1e9, 2 * math.Pi * 1e9 / SpeedOfLight},
		{"BINGO band center 1.1 GHz", 1.1e9, 2 * math.Pi * 1.1e9 / SpeedOfLight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WaveNumber(tt.freqHz)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("WaveNumber(%g) = %f, want %f", tt.freqHz, result, tt.expected)
			}
		})
	}
}

func TestWaveNumberFromWavelength(t *testing.T) {
	// k = 2*pi/0.3 is the canonical test wavelength used across the engine tests.
	result := WaveNumberFromWavelength(0.3)
	expected := 2 * math.Pi / 0.3
	if math.Abs(result-expected) > 1e-12 {
		t.Errorf("WaveNumberFromWavelength(0.3) = %f, want %f", result, expected)
	}
}

func TestRatioToDB(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		expected float64
	}{
		{"unity is 0 dB", 1.0, 0.0},
		{"half power point", math.Sqrt(0.5), -3.0103},
		{"one tenth", 0.1, -20.0},
		{"zero maps to floor", 0.0, DBFloor},
		{"negative maps to floor", -0.5, DBFloor},
		{"tiny ratio clamps to floor", 1e-12, DBFloor},
		{"NaN maps to floor", math.NaN(), DBFloor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RatioToDB(tt.ratio)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("RatioToDB(%f) = %f, want %f", tt.ratio, result, tt.expected)
			}
		})
	}
}

func TestDBToRatioInvertsRatioToDB(t *testing.T) {
	// linear == 10^(dB/20) must hold wherever dB > DBFloor.
	for _, ratio := range []float64{1.0, 0.5, 0.1, 0.01, 1e-4} {
		db := RatioToDB(ratio)
		if db <= DBFloor {
			continue
		}
		got := DBToRatio(db)
		if math.Abs(got-ratio) > 1e-9 {
			t.Errorf("DBToRatio(RatioToDB(%g)) = %g, want %g", ratio, got, ratio)
		}
	}
}

func TestAngleRadians(t *testing.T) {
	a := Angle{ThetaDeg: 90, PhiDeg: 180}
	if math.Abs(a.ThetaRad()-math.Pi/2) > 1e-12 {
		t.Errorf("ThetaRad() = %f, want %f", a.ThetaRad(), math.Pi/2)
	}
	if math.Abs(a.PhiRad()-math.Pi) > 1e-12 {
		t.Errorf("PhiRad() = %f, want %f", a.PhiRad(), math.Pi)
	}
}
