package gpu

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/blang/semver/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/celer-network/gnark-gpu/gpu/kernel"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	want := Config{
		Speedup:       3.1,
		NumGroups:     334,
		WindowSize:    10,
		ChunkSize:     15_000_000,
		LocalWorkSize: 256,
		Groups:        []kernel.Group{kernel.G1, kernel.G2},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("default config (-want +got):\n%s", diff)
	}
}

func TestNewConfigOptions(t *testing.T) {
	assert := require.New(t)

	cfg, err := NewConfig(
		WithSpeedup(2),
		WithNumGroups(8),
		WithWindowSize(12),
		WithChunkSize(1<<20),
		WithLocalWorkSize(64),
		WithGroups(kernel.G1),
		WithMinDriverVersion("12.2"),
	)
	assert.NoError(err)
	assert.Equal(2.0, cfg.Speedup)
	assert.Equal(8, cfg.NumGroups)
	assert.Equal(12, cfg.WindowSize)
	assert.Equal(1<<20, cfg.ChunkSize)
	assert.Equal(64, cfg.LocalWorkSize)
	assert.Equal([]kernel.Group{kernel.G1}, cfg.Groups)
	assert.Equal(semver.MustParse("12.2.0"), cfg.MinDriverVersion)

	assert.NoError(cfg.qualify(kernel.DeviceInfo{Driver: "12.4.1"}))
	assert.Error(cfg.qualify(kernel.DeviceInfo{Driver: "11.8"}))
	assert.Error(cfg.qualify(kernel.DeviceInfo{Driver: "unknown"}))
}

func TestNewConfigInvalid(t *testing.T) {
	for name, opt := range map[string]Option{
		"speedup":     WithSpeedup(0),
		"negative":    WithSpeedup(-1),
		"groups":      WithNumGroups(0),
		"window":      WithWindowSize(kernel.MaxWindowSize + 1),
		"chunk":       WithChunkSize(0),
		"local":       WithLocalWorkSize(-3),
		"no group":    WithGroups(),
		"bad version": WithMinDriverVersion("latest"),
		"profile":     WithProfile(Profile{Device: "broken", WindowSize: 64}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewConfig(opt)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := NewConfig(WithGroups(kernel.G1, kernel.G1))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProfile(t *testing.T) {
	assert := require.New(t)

	p := Profile{Device: "RTX 4090", Speedup: 7.5, NumGroups: 512, WindowSize: 11}
	path := filepath.Join(t.TempDir(), "rtx4090.profile")
	assert.NoError(p.Save(path))

	loaded, err := LoadProfile(path)
	assert.NoError(err)
	if diff := cmp.Diff(p, loaded); diff != "" {
		t.Fatalf("loaded profile (-want +got):\n%s", diff)
	}

	cfg, err := NewConfig(WithChunkSize(1000), WithProfile(loaded))
	assert.NoError(err)
	assert.Equal(7.5, cfg.Speedup)
	assert.Equal(512, cfg.NumGroups)
	assert.Equal(11, cfg.WindowSize)
	assert.Equal(1000, cfg.ChunkSize, "zero profile fields keep the current value")
	assert.Equal(kernel.DefaultLocalWorkSize, cfg.LocalWorkSize)

	_, err = ReadProfile(bytes.NewReader([]byte{0xff, 0x00}))
	assert.Error(err)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(err)
}
