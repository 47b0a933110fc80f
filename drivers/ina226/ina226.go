// Package ina226 provides a driver for the TI INA226 bus/shunt voltage and
// current monitor. Registers are 16-bit, transferred big-endian.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package ina226

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Default I2C address (A0 = A1 = GND).
const Address = 0x40

// Registers.
const (
	regConfig      = 0x00
	regShuntV      = 0x01
	regBusV        = 0x02
	regPower       = 0x03
	regCurrent     = 0x04
	regCalibration = 0x05
	regManufID     = 0xFE
)

const (
	manufacturerTI = 0x5449 // "TI"

	configReset = 0x8000
	// 16-sample averaging, 1.1 ms conversions, continuous shunt and bus.
	configDefault = 0x4527

	busLSBMicroVolts   = 1250 // 1.25 mV/bit
	shuntLSBNanoVolts  = 2500 // 2.5 uV/bit
	calibrationNumer   = 5_120_000_000
	currentLSBDivision = 32768
)

// Errors returned by the driver.
var (
	ErrNotPresent   = errors.New("ina226: manufacturer id mismatch")
	ErrUncalibrated = errors.New("ina226: not calibrated")
)

// Config controls calibration. All fields are optional.
type Config struct {
	// Address defaults to 0x40 if zero.
	Address uint16
	// ShuntMicroOhms is the external shunt value. Default 100000 (100 mOhm).
	ShuntMicroOhms uint32
	// MaxCurrentMicroAmps sets the expected full-scale current, from which the
	// current LSB is derived. Default 3276800 (3.2768 A, 100 uA/bit).
	MaxCurrentMicroAmps uint32
}

// Device wraps an I2C connection to an INA226 device.
type Device struct {
	i2c  drivers.I2C
	addr uint16

	currentLSBMicroAmps uint32

	w [3]byte
	r [2]byte
}

// New creates a new INA226 connection. The I2C bus must already be configured.
func New(i2c drivers.I2C) *Device {
	return &Device{i2c: i2c, addr: Address}
}

// Configure verifies the device identity, resets it and programs averaging
// plus the calibration register from the shunt value.
func (d *Device) Configure(cfgs ...Config) error {
	var cfg Config
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	if cfg.Address != 0 {
		d.addr = cfg.Address
	}
	if cfg.ShuntMicroOhms == 0 {
		cfg.ShuntMicroOhms = 100_000
	}
	if cfg.MaxCurrentMicroAmps == 0 {
		cfg.MaxCurrentMicroAmps = 3_276_800
	}

	id, err := d.readWord(regManufID)
	if err != nil {
		return err
	}
	if id != manufacturerTI {
		return ErrNotPresent
	}

	if err := d.writeWord(regConfig, configReset); err != nil {
		return err
	}
	if err := d.writeWord(regConfig, configDefault); err != nil {
		return err
	}

	d.currentLSBMicroAmps = cfg.MaxCurrentMicroAmps / currentLSBDivision
	if d.currentLSBMicroAmps == 0 {
		d.currentLSBMicroAmps = 1
	}
	cal := uint16(calibrationNumer / (uint64(d.currentLSBMicroAmps) * uint64(cfg.ShuntMicroOhms)))
	return d.writeWord(regCalibration, cal)
}

// BusMicroVolts reads the bus (load) voltage.
func (d *Device) BusMicroVolts() (uint32, error) {
	raw, err := d.readWord(regBusV)
	if err != nil {
		return 0, err
	}
	return uint32(raw) * busLSBMicroVolts, nil
}

// ShuntNanoVolts reads the signed shunt drop.
func (d *Device) ShuntNanoVolts() (int32, error) {
	raw, err := d.readWord(regShuntV)
	if err != nil {
		return 0, err
	}
	return int32(int16(raw)) * shuntLSBNanoVolts, nil
}

// CurrentMicroAmps reads the calibrated current.
func (d *Device) CurrentMicroAmps() (int32, error) {
	if d.currentLSBMicroAmps == 0 {
		return 0, ErrUncalibrated
	}
	raw, err := d.readWord(regCurrent)
	if err != nil {
		return 0, err
	}
	return int32(int16(raw)) * int32(d.currentLSBMicroAmps), nil
}

// PowerMicroWatts reads the calibrated power (power LSB is 25x current LSB).
func (d *Device) PowerMicroWatts() (uint32, error) {
	if d.currentLSBMicroAmps == 0 {
		return 0, ErrUncalibrated
	}
	raw, err := d.readWord(regPower)
	if err != nil {
		return 0, err
	}
	return uint32(raw) * 25 * d.currentLSBMicroAmps, nil
}

// I2C 16-bit word operations (big-endian: HIGH then LOW).

func (d *Device) readWord(reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}

func (d *Device) writeWord(reg byte, val uint16) error {
	d.w[0] = reg
	d.w[1] = byte(val >> 8)
	d.w[2] = byte(val)
	return d.i2c.Tx(d.addr, d.w[:3], nil)
}
