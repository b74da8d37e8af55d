package dsp

import "testing"

func TestFlatEQPassesSignalThrough(t *testing.T) {
	eq := NewEQ(44100, 1)
	in := []float32{0.1, -0.2, 0.3, -0.4}
	out := eq.Process(append([]float32(nil), in...))
	for i, v := range out {
		diff := v - in[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.05 {
			t.Fatalf("flat EQ sample %d: got %f, want close to %f", i, v, in[i])
		}
	}
}

func TestProcessClipsToUnitRange(t *testing.T) {
	eq := NewEQ(44100, 1)
	if err := eq.SetGain(1000, 12); err != nil {
		t.Fatal(err)
	}
	loud := make([]float32, 64)
	for i := range loud {
		loud[i] = 0.99
	}
	out := eq.Process(loud)
	for _, v := range out {
		if v > 1 || v < -1 {
			t.Fatalf("sample out of [-1,1]: %f", v)
		}
	}
}

func TestSetGainUnknownFrequencyIsNoop(t *testing.T) {
	eq := NewEQ(44100, 1)
	if err := eq.SetGain(999, 6); err != nil {
		t.Fatal(err)
	}
	gains := eq.GetGains()
	if _, ok := gains[999]; ok {
		t.Fatal("unknown frequency should not appear in GetGains")
	}
}

func TestGetGainsRoundTrip(t *testing.T) {
	eq := NewEQ(44100, 2)
	if err := eq.SetGain(1000, 6); err != nil {
		t.Fatal(err)
	}
	gains := eq.GetGains()
	if gains[1000] != 6 {
		t.Fatalf("gains[1000] = %f, want 6", gains[1000])
	}
	if len(gains) != 10 {
		t.Fatalf("len(gains) = %d, want 10", len(gains))
	}
}
