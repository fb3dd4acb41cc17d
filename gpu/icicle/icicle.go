//go:build icicle

// Package icicle runs multiexp kernels on CUDA devices through the icicle
// runtime.
package icicle

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	icicle_core "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/core"
	icicle_bn254 "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bn254"
	icicle_msm "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bn254/msm"
	icicle_runtime "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/runtime"

	"github.com/celer-network/gnark-gpu/gpu/kernel"
)

const HasIcicle = true

// Groups are the groups icicle kernels can be built for.
var Groups = []kernel.Group{kernel.G1}

// Backend enumerates the CUDA devices of the icicle runtime.
type Backend struct {
	deviceType string
}

func NewBackend() (*Backend, error) {
	if st := icicle_runtime.LoadBackendFromEnvOrDefault(); st != icicle_runtime.Success {
		return nil, fmt.Errorf("icicle backend: %s", st.AsString())
	}
	return &Backend{deviceType: "CUDA"}, nil
}

func (b *Backend) Name() string { return "icicle" }

func (b *Backend) Devices() ([]kernel.Device, error) {
	count, st := icicle_runtime.GetDeviceCount()
	if st != icicle_runtime.Success {
		return nil, fmt.Errorf("icicle device count: %s", st.AsString())
	}
	devices := make([]kernel.Device, count)
	for i := range devices {
		devices[i] = &device{
			dev:  icicle_runtime.CreateDevice(b.deviceType, i),
			info: kernel.DeviceInfo{Index: i, Name: fmt.Sprintf("%s-%d", b.deviceType, i), Vendor: "icicle"},
		}
	}
	return devices, nil
}

type device struct {
	dev  icicle_runtime.Device
	info kernel.DeviceInfo
}

func (d *device) Info() kernel.DeviceInfo { return d.info }

// Alloc returns a host staging buffer. Data moves to the device when a
// program is launched.
func (d *device) Alloc(size int) (kernel.Buffer, error) {
	return &buffer{data: make([]byte, size)}, nil
}

func (d *device) Build(src kernel.Source) (kernel.Program, error) {
	if src.Curve != ecc.BN254 {
		return nil, fmt.Errorf("icicle: unsupported curve %s", src.Curve)
	}
	for _, e := range src.Entries {
		if e != kernel.G1.EntryPoint() {
			return nil, fmt.Errorf("icicle: unsupported entry point %q", e)
		}
	}
	return &program{dev: d.dev}, nil
}

type buffer struct {
	data []byte
}

func (b *buffer) Len() int { return len(b.data) }

func (b *buffer) Write(src []byte) error {
	if len(src) > len(b.data) {
		return fmt.Errorf("icicle: write of %d bytes into a %d bytes buffer", len(src), len(b.data))
	}
	copy(b.data, src)
	return nil
}

func (b *buffer) Read(dst []byte) error {
	if len(dst) > len(b.data) {
		return fmt.Errorf("icicle: read of %d bytes from a %d bytes buffer", len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

func (b *buffer) Free() error {
	b.data = nil
	return nil
}

type program struct {
	dev icicle_runtime.Device
}

func (p *program) Close() error { return nil }

// Launch runs the whole batch as one device MSM. The sum is reported as the
// partial of the first work item and every other partial is left at
// infinity, which the host combination folds back into the same result.
func (p *program) Launch(entry string, args kernel.LaunchArgs) error {
	if entry != kernel.G1.EntryPoint() {
		return fmt.Errorf("icicle: unsupported entry point %q", entry)
	}
	bases, ok1 := args.Bases.(*buffer)
	exps, ok2 := args.Exps.(*buffer)
	results, ok3 := args.Results.(*buffer)
	if !ok1 || !ok2 || !ok3 {
		return errors.New("icicle: launch with a foreign buffer")
	}

	n := int(args.N)
	points := make([]bn254.G1Affine, n)
	if err := kernel.ReadG1Affines(points, bases.data[:n*kernel.G1AffineBytes]); err != nil {
		return err
	}
	scalars := make([]fr.Element, n)
	if err := kernel.ReadScalars(scalars, exps.data[:n*kernel.ScalarBytes]); err != nil {
		return err
	}

	var res bn254.G1Jac
	var msmErr error
	done := make(chan struct{})
	icicle_runtime.RunOnDevice(&p.dev, func(args ...any) {
		defer close(done)

		cfg := icicle_msm.GetDefaultMSMConfig()
		cfg.AreScalarsMontgomeryForm = true
		cfg.AreBasesMontgomeryForm = true
		out := make(icicle_core.HostSlice[icicle_bn254.Projective], 1)
		st := icicle_msm.Msm(icicle_core.HostSliceFromElements(scalars), icicle_core.HostSlice[bn254.G1Affine](points), &cfg, out)
		if st != icicle_runtime.Success {
			msmErr = fmt.Errorf("icicle msm: %s", st.AsString())
			return
		}
		res, msmErr = toJacobian(&out[0])
	})
	<-done
	if msmErr != nil {
		return msmErr
	}

	workItems := int(args.NumGroups * args.NumWindows)
	partials := make([]bn254.G1Jac, workItems)
	partials[0] = res
	return kernel.PutG1Jacobians(results.data[:workItems*kernel.G1JacobianBytes], partials)
}

// toJacobian converts an icicle projective point (x = X/Z, y = Y/Z).
func toJacobian(p *icicle_bn254.Projective) (bn254.G1Jac, error) {
	var res bn254.G1Jac
	x, err := fp.LittleEndian.Element((*[fp.Bytes]byte)(p.X.ToBytesLittleEndian()))
	if err != nil {
		return res, err
	}
	y, err := fp.LittleEndian.Element((*[fp.Bytes]byte)(p.Y.ToBytesLittleEndian()))
	if err != nil {
		return res, err
	}
	z, err := fp.LittleEndian.Element((*[fp.Bytes]byte)(p.Z.ToBytesLittleEndian()))
	if err != nil {
		return res, err
	}
	if z.IsZero() {
		return res, nil
	}
	var zInv fp.Element
	zInv.Inverse(&z)
	var a bn254.G1Affine
	a.X.Mul(&x, &zInv)
	a.Y.Mul(&y, &zInv)
	res.FromAffine(&a)
	return res, nil
}
