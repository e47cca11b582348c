package imu

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFingerNames(t *testing.T) {
	want := []string{"thumb", "index", "middle", "ring", "pinky"}
	for f := Finger(0); f < NumFingers; f++ {
		if f.String() != want[f] {
			t.Errorf("finger %d: expected %q, got %q", f, want[f], f.String())
		}
		back, err := FingerFromName(want[f])
		if err != nil {
			t.Fatalf("FingerFromName(%q): %v", want[f], err)
		}
		if back != f {
			t.Errorf("round trip for %q gave %d", want[f], back)
		}
	}

	if _, err := FingerFromName("palm"); err == nil {
		t.Error("expected error for unknown finger name")
	}
}

func TestHandPoseJSONRoundTrip(t *testing.T) {
	pose := HandPose{
		Thumb:  {X: 0.01, Y: 0.02, Z: 0.03},
		Index:  {X: -0.04, Y: 0.05, Z: 0.06},
		Middle: {X: 0.07, Y: -0.08, Z: 0.09},
		Ring:   {X: 0.10, Y: 0.11, Z: -0.12},
		Pinky:  {X: 0.13, Y: 0.14, Z: 0.15},
	}

	data, err := json.Marshal(pose)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back HandPose
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(pose, back); diff != "" {
		t.Errorf("pose round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHandPoseUnmarshalClearsReceiver(t *testing.T) {
	pose := HandPose{
		Thumb: {X: 1, Y: 2, Z: 3},
		Pinky: {X: 4, Y: 5, Z: 6},
	}

	// Reusing a populated pose: fingers absent from the payload must end
	// up at the zero position, not keep their previous values.
	if err := json.Unmarshal([]byte(`{"index":{"x":0.01,"y":0.02,"z":0.03}}`), &pose); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := HandPose{Index: {X: 0.01, Y: 0.02, Z: 0.03}}
	if diff := cmp.Diff(want, pose); diff != "" {
		t.Errorf("stale fingers survived unmarshal (-want +got):\n%s", diff)
	}
}
