package config

import "testing"

func TestValidateFormat(t *testing.T) {
	valid := []Format{
		{SampleRate: 8000, Channels: 1},
		{SampleRate: 16000, Channels: 2},
		{SampleRate: 22050, Channels: 1},
		{SampleRate: 32000, Channels: 2},
		{SampleRate: 44100, Channels: 1},
		{SampleRate: 48000, Channels: 2},
	}
	for _, f := range valid {
		if err := ValidateFormat(f); err != nil {
			t.Errorf("ValidateFormat(%+v) = %v, want nil", f, err)
		}
	}

	invalid := []Format{
		{SampleRate: 44100, Channels: 0},
		{SampleRate: 44100, Channels: 3},
		{SampleRate: 11025, Channels: 1},
		{SampleRate: 0, Channels: 1},
	}
	for _, f := range invalid {
		if err := ValidateFormat(f); err == nil {
			t.Errorf("ValidateFormat(%+v) = nil, want error", f)
		}
	}
}

func TestValidateReduction(t *testing.T) {
	if err := ValidateReduction(DefaultReduction()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	invalid := []Reduction{
		{ReductionDB: 25, Sensitivity: 12, FreqSmoothingBands: 2, ProfileSeconds: 1},
		{ReductionDB: -1, Sensitivity: 12, FreqSmoothingBands: 2, ProfileSeconds: 1},
		{ReductionDB: 12, Sensitivity: 30, FreqSmoothingBands: 2, ProfileSeconds: 1},
		{ReductionDB: 12, Sensitivity: 12, FreqSmoothingBands: 7, ProfileSeconds: 1},
		{ReductionDB: 12, Sensitivity: 12, FreqSmoothingBands: 2, ProfileSeconds: 0.1},
		{ReductionDB: 12, Sensitivity: 12, FreqSmoothingBands: 2, ProfileSeconds: 9},
	}
	for _, r := range invalid {
		if err := ValidateReduction(r); err == nil {
			t.Errorf("ValidateReduction(%+v) = nil, want error", r)
		}
	}
}

func TestFormatDerivedFields(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2}
	if f.BytesPerFrame() != 4 {
		t.Errorf("BytesPerFrame = %d, want 4", f.BytesPerFrame())
	}
	if f.ByteRate() != 44100*2*2 {
		t.Errorf("ByteRate = %d, want %d", f.ByteRate(), 44100*2*2)
	}
}
