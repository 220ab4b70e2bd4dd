package hpm

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

const testI2CAddr = 0x38

func TestI2CRead(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: testI2CAddr, W: []byte{RegMode}, R: []byte{4, 'A', 'P', 'P', ' '}},
		},
		DontPanic: true,
	}
	d := NewI2C(bus, testI2CAddr, Config{Logger: testLogger()})
	mode, err := d.Mode()
	if err != nil {
		t.Fatal(err)
	}
	if mode != "APP " {
		t.Errorf("got mode %q", mode)
	}
	if err := bus.Close(); err != nil {
		t.Error(err)
	}
}

func TestI2CWrite(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: testI2CAddr, W: []byte{RegData1, 3, 0xa, 0xb, 0xc}},
		},
		DontPanic: true,
	}
	d := NewI2C(bus, testI2CAddr, Config{})
	if err := d.Write(RegData1, []byte{0xa, 0xb, 0xc}); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Error(err)
	}
}

func TestI2CShortRegister(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: testI2CAddr, W: []byte{RegPowerState}, R: []byte{1, 0, 0}},
		},
		DontPanic: true,
	}
	d := NewI2C(bus, testI2CAddr, Config{})
	err := d.Read(RegPowerState, make([]byte, 2))
	if !errors.Is(err, ErrRegisterTooShort) {
		t.Fatalf("want ErrRegisterTooShort, got %v", err)
	}
}

func TestI2CBusError(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	d := NewI2C(bus, testI2CAddr, Config{})
	if err := d.Read(RegMode, make([]byte, 4)); err == nil {
		t.Fatal("expected error from empty playback")
	}
}

func TestI2CWakeUnsupported(t *testing.T) {
	d := NewI2C(&i2ctest.Playback{DontPanic: true}, testI2CAddr, Config{})
	if err := d.Wake(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("want ErrUnsupported, got %v", err)
	}
}

func TestI2CCommandOutput(t *testing.T) {
	out := []byte{0x11, 0x22}
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: testI2CAddr, W: []byte{RegCmd1, 4, 'G', 'A', 'I', 'D'}},
			{Addr: testI2CAddr, W: []byte{RegCmd1}, R: []byte{8, 0, 0, 0, 0}},
			{Addr: testI2CAddr, W: []byte{RegData1}, R: append([]byte{64}, out...)},
		},
		DontPanic: true,
	}
	d := NewI2C(bus, testI2CAddr, Config{Delay: nodelay})
	got, err := d.Command(context.Background(), "GAID", nil, len(out))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, out) {
		t.Errorf("got %x want %x", got, out)
	}
	if err := bus.Close(); err != nil {
		t.Error(err)
	}
}
