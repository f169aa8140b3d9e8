package icm20948

import (
	"fmt"
	"time"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/i2c"
)

var sleep = time.Sleep

// ICM-20948 accelerometer plus its on-die AK09916 magnetometer.
//
// The magnetometer sits behind the IMU's auxiliary I2C master. We enable
// bypass mode so it appears directly on the host bus at 0x0C.

const (
	addrDefault = 0x68
	addrMag     = 0x0C

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regUserCtrl   = 0x03
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	regIntPinCfg  = 0x0F
	bitBypassEn   = 0x02
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D

	// Bank 2.
	bank2           = 2
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14
	fsAccel4g       = 0x01 << 1 // ACCEL_FS_SEL=1

	// AK09916.
	regMagWIA2  = 0x01
	magWIA2Val  = 0x09
	regMagST1   = 0x10
	bitMagDRDY  = 0x01
	regMagHXL   = 0x11
	regMagST2   = 0x18
	bitMagHOFL  = 0x08
	regMagCNTL2 = 0x31
	regMagCNTL3 = 0x32
	magMode50Hz = 0x06
	magSoftRst  = 0x01

	standardGravity = 9.80665
	magScaleUT      = 0.15
)

// Sample holds one accelerometer reading (m/s²) and, when the magnetometer
// had fresh data, one magnetometer reading (µT).
type Sample struct {
	Time   time.Time
	Accel  ahrs.Vector3
	Mag    ahrs.Vector3
	MagOK  bool
	MagOvf bool
}

type Device struct {
	dev regIO
	mag regIO

	curBank    byte
	scaleAccel float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func MagAddress() uint16 { return addrMag }

// New probes and configures the IMU at dev and the magnetometer at mag.
// mag may be nil, in which case only the accelerometer is read.
func New(dev, mag *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	if mag == nil {
		return newWithIO(dev, nil)
	}
	return newWithIO(dev, mag)
}

func newWithIO(dev, mag regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	d := &Device{dev: dev, curBank: 0xFF}

	if err := d.setBank(0); err != nil {
		return nil, err
	}
	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	if mag != nil {
		if err := d.initMag(mag); err != nil {
			return nil, err
		}
		d.mag = mag
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)
	// Reset returns to bank 0.
	d.curBank = 0

	// Auto clock select, out of sleep.
	if err := d.dev.WriteReg(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	_ = d.dev.WriteReg(regIntEnable, 0x00)

	// I2C master off so the aux bus can be bypassed to the host.
	if err := d.dev.WriteReg(regUserCtrl, 0x00); err != nil {
		return fmt.Errorf("icm20948: user ctrl failed: %w", err)
	}
	if err := d.dev.WriteReg(regIntPinCfg, bitBypassEn); err != nil {
		return fmt.Errorf("icm20948: bypass enable failed: %w", err)
	}

	if err := d.setBank(bank2); err != nil {
		return err
	}
	// 1125/(1+div) Hz; 21 gives ~51 Hz.
	_ = d.dev.WriteReg(regAccelSmplrt2, 21)
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}
	if err := d.setBank(0); err != nil {
		return err
	}

	d.scaleAccel = 4.0 / 32768.0 * standardGravity
	return nil
}

func (d *Device) initMag(mag regIO) error {
	wia, err := mag.ReadRegU8(regMagWIA2)
	if err != nil {
		return fmt.Errorf("ak09916: wia read failed: %w", err)
	}
	if wia != magWIA2Val {
		return fmt.Errorf("ak09916: wia2=0x%02X want 0x%02X", wia, magWIA2Val)
	}
	if err := mag.WriteReg(regMagCNTL3, magSoftRst); err != nil {
		return fmt.Errorf("ak09916: reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	if err := mag.WriteReg(regMagCNTL2, magMode50Hz); err != nil {
		return fmt.Errorf("ak09916: mode set failed: %w", err)
	}
	return nil
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

// HasMag reports whether the magnetometer was configured.
func (d *Device) HasMag() bool { return d != nil && d.mag != nil }

func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return Sample{}, err
	}

	buf := make([]byte, 6)
	if err := d.dev.ReadReg(regAccelXoutH, buf); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read accel failed: %w", err)
	}
	ax := int16(buf[0])<<8 | int16(buf[1])
	ay := int16(buf[2])<<8 | int16(buf[3])
	az := int16(buf[4])<<8 | int16(buf[5])

	s := Sample{
		Time: time.Now(),
		Accel: ahrs.Vector3{
			X: float64(ax) * d.scaleAccel,
			Y: float64(ay) * d.scaleAccel,
			Z: float64(az) * d.scaleAccel,
		},
	}
	if d.mag == nil {
		return s, nil
	}

	st1, err := d.mag.ReadRegU8(regMagST1)
	if err != nil {
		return Sample{}, fmt.Errorf("ak09916: read st1 failed: %w", err)
	}
	if st1&bitMagDRDY == 0 {
		return s, nil
	}

	// HXL..HZH then a dummy byte and ST2; reading ST2 releases the data lock.
	mbuf := make([]byte, regMagST2-regMagHXL+1)
	if err := d.mag.ReadReg(regMagHXL, mbuf); err != nil {
		return Sample{}, fmt.Errorf("ak09916: read data failed: %w", err)
	}
	if mbuf[len(mbuf)-1]&bitMagHOFL != 0 {
		s.MagOvf = true
		return s, nil
	}
	mx := int16(mbuf[1])<<8 | int16(mbuf[0])
	my := int16(mbuf[3])<<8 | int16(mbuf[2])
	mz := int16(mbuf[5])<<8 | int16(mbuf[4])
	// AK09916 Y and Z point opposite to the accelerometer's.
	s.Mag = ahrs.Vector3{
		X: float64(mx) * magScaleUT,
		Y: -float64(my) * magScaleUT,
		Z: -float64(mz) * magScaleUT,
	}
	s.MagOK = true
	return s, nil
}
