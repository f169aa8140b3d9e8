package icm20948

import (
	"errors"
	"math"
	"testing"
	"time"
)

type fakeI2C struct {
	regs   map[byte][]byte
	writes []writeOp

	readErrFor map[byte]error
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	if err := f.readErrFor[reg]; err != nil {
		return 0, err
	}
	b := f.regs[reg]
	if len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if err := f.readErrFor[reg]; err != nil {
		return err
	}
	b := f.regs[reg]
	if len(b) < len(dst) {
		return errors.New("short reg")
	}
	copy(dst, b[:len(dst)])
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func (f *fakeI2C) wrote(reg, val byte) bool {
	for _, w := range f.writes {
		if w.reg == reg && w.val == val {
			return true
		}
	}
	return false
}

func noSleep(t *testing.T) {
	t.Helper()
	old := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = old })
}

func newFakeIMU() *fakeI2C {
	return &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
}

func newFakeMag() *fakeI2C {
	return &fakeI2C{regs: map[byte][]byte{regMagWIA2: {magWIA2Val}}}
}

func TestNew_WhoAmIMismatch(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {0x00}}}
	if _, err := newWithIO(f, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNew_WritesExpectedInitRegisters(t *testing.T) {
	noSleep(t)
	imu := newFakeIMU()
	mag := newFakeMag()
	d, err := newWithIO(imu, mag)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	if !d.HasMag() {
		t.Fatalf("expected magnetometer")
	}

	checks := []struct {
		name string
		f    *fakeI2C
		reg  byte
		val  byte
	}{
		{"Reset", imu, regPwrMgmt1, bitReset},
		{"Wake", imu, regPwrMgmt1, 0x01},
		{"Bypass", imu, regIntPinCfg, bitBypassEn},
		{"Bank2", imu, regBankSel, bank2 << 4},
		{"AccelFullScale", imu, regAccelConfig, fsAccel4g},
		{"MagReset", mag, regMagCNTL3, magSoftRst},
		{"MagContinuous", mag, regMagCNTL2, magMode50Hz},
	}
	for _, c := range checks {
		if !c.f.wrote(c.reg, c.val) {
			t.Fatalf("%s: expected write 0x%02X=0x%02X", c.name, c.reg, c.val)
		}
	}
}

func TestNew_MagWhoAmIMismatch(t *testing.T) {
	noSleep(t)
	mag := &fakeI2C{regs: map[byte][]byte{regMagWIA2: {0x48}}}
	if _, err := newWithIO(newFakeIMU(), mag); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRead_ScalesAccel(t *testing.T) {
	noSleep(t)
	imu := newFakeIMU()
	// 8192 counts = 1 g at ±4 g full scale.
	imu.regs[regAccelXoutH] = []byte{
		0x20, 0x00,
		0x00, 0x00,
		0xE0, 0x00,
	}
	d, err := newWithIO(imu, nil)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	s, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if math.Abs(s.Accel.X-standardGravity) > 1e-9 {
		t.Fatalf("Ax=%v want %v", s.Accel.X, standardGravity)
	}
	if math.Abs(s.Accel.Z+standardGravity) > 1e-9 {
		t.Fatalf("Az=%v want %v", s.Accel.Z, -standardGravity)
	}
	if s.MagOK {
		t.Fatalf("no magnetometer configured")
	}
}

func TestRead_ScalesAndAlignsMag(t *testing.T) {
	noSleep(t)
	imu := newFakeIMU()
	imu.regs[regAccelXoutH] = make([]byte, 6)
	mag := newFakeMag()
	mag.regs[regMagST1] = []byte{bitMagDRDY}
	// X=100, Y=200, Z=-300 little-endian, dummy, ST2.
	mag.regs[regMagHXL] = []byte{
		0x64, 0x00,
		0xC8, 0x00,
		0xD4, 0xFE,
		0x00, 0x00,
	}
	d, err := newWithIO(imu, mag)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	s, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !s.MagOK {
		t.Fatalf("expected magnetometer sample")
	}
	want := [3]float64{15, -30, 45}
	got := [3]float64{s.Mag.X, s.Mag.Y, s.Mag.Z}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("mag=%v want %v", got, want)
		}
	}
}

func TestRead_MagNotReadyOrOverflow(t *testing.T) {
	noSleep(t)
	imu := newFakeIMU()
	imu.regs[regAccelXoutH] = make([]byte, 6)
	mag := newFakeMag()
	mag.regs[regMagST1] = []byte{0x00}
	mag.regs[regMagHXL] = make([]byte, 8)
	d, err := newWithIO(imu, mag)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	s, err := d.Read()
	if err != nil || s.MagOK {
		t.Fatalf("not ready: MagOK=%v err=%v", s.MagOK, err)
	}

	mag.regs[regMagST1] = []byte{bitMagDRDY}
	mag.regs[regMagHXL][7] = bitMagHOFL
	s, err = d.Read()
	if err != nil || s.MagOK || !s.MagOvf {
		t.Fatalf("overflow: MagOK=%v MagOvf=%v err=%v", s.MagOK, s.MagOvf, err)
	}
}

func TestRead_PropagatesBusError(t *testing.T) {
	noSleep(t)
	imu := newFakeIMU()
	d, err := newWithIO(imu, nil)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	busErr := errors.New("nack")
	imu.readErrFor = map[byte]error{regAccelXoutH: busErr}
	if _, err := d.Read(); !errors.Is(err, busErr) {
		t.Fatalf("err=%v want %v", err, busErr)
	}
}
