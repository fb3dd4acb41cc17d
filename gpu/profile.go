package gpu

import (
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Profile is a persisted set of tuning parameters measured for a device
// model.
type Profile struct {
	Device        string  `cbor:"1,keyasint,omitempty"`
	Speedup       float64 `cbor:"2,keyasint,omitempty"`
	NumGroups     int     `cbor:"3,keyasint,omitempty"`
	WindowSize    int     `cbor:"4,keyasint,omitempty"`
	ChunkSize     int     `cbor:"5,keyasint,omitempty"`
	LocalWorkSize int     `cbor:"6,keyasint,omitempty"`
}

func ReadProfile(r io.Reader) (Profile, error) {
	var p Profile
	if err := cbor.NewDecoder(r).Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

func LoadProfile(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, err
	}
	defer f.Close()
	return ReadProfile(f)
}

func (p Profile) WriteTo(w io.Writer) (int64, error) {
	b, err := cbor.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("encode profile: %w", err)
	}
	n, err := w.Write(b)
	return int64(n), err
}

func (p Profile) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := p.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
