package imu

import (
	"encoding/json"
	"fmt"
)

// Finger identifies one of the five tracked fingers. Using a small
// integer enum (rather than string keys) lets pose code iterate
// exhaustively and makes typos unrepresentable.
type Finger int

const (
	Thumb Finger = iota
	Index
	Middle
	Ring
	Pinky

	// NumFingers is the fixed population of tracked fingers.
	NumFingers = 5
)

var fingerNames = [NumFingers]string{"thumb", "index", "middle", "ring", "pinky"}

// String returns the lowercase finger name used on the wire.
func (f Finger) String() string {
	if f < 0 || f >= NumFingers {
		return fmt.Sprintf("finger(%d)", int(f))
	}
	return fingerNames[f]
}

// FingerFromName maps a wire name back to a Finger.
func FingerFromName(name string) (Finger, error) {
	for i, n := range fingerNames {
		if n == name {
			return Finger(i), nil
		}
	}
	return 0, fmt.Errorf("unknown finger %q", name)
}

// HandPose is the estimated 3D position of each fingertip magnet, in
// meters, sensor frame.
type HandPose [NumFingers]Vec3

// MarshalJSON emits the named-key object form consumed by
// visualisation clients: {"thumb":{...},...,"pinky":{...}}.
func (p HandPose) MarshalJSON() ([]byte, error) {
	out := make(map[string]Vec3, NumFingers)
	for f := Finger(0); f < NumFingers; f++ {
		out[f.String()] = p[f]
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the named-key object form. Missing fingers are
// left at the zero position.
func (p *HandPose) UnmarshalJSON(data []byte) error {
	var raw map[string]Vec3
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = HandPose{}
	for name, v := range raw {
		f, err := FingerFromName(name)
		if err != nil {
			return err
		}
		p[f] = v
	}
	return nil
}
