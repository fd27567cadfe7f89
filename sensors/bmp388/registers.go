package bmp388

// Address is the I2C address with SDO pulled high. 0x76 when pulled low.
const Address byte = 0x77

// ChipID is the content of the chip id register on a BMP388.
const ChipID byte = 0x50

const (
	regChipID  byte = 0x00
	regErr     byte = 0x02
	regStatus  byte = 0x03
	regData    byte = 0x04 // pressure xlsb..msb then temperature xlsb..msb
	regPwrCtrl byte = 0x1B
	regOSR     byte = 0x1C
	regODR     byte = 0x1D
	regConfig  byte = 0x1F // IIR filter
	regCalib   byte = 0x31
	regCmd     byte = 0x7E

	calibLen = 21
	dataLen  = 6
)

const (
	pwrPress byte = 0x01
	pwrTemp  byte = 0x02

	errConf byte = 0x04

	statusCmdReady byte = 0x10
	statusPress    byte = 0x20
	statusTemp     byte = 0x40

	cmdSoftReset byte = 0xB6
)

// Mode is the power mode. In Forced mode the chip takes one measurement and
// sleeps again; the driver re-triggers it before every read.
type Mode byte

const (
	Sleep  Mode = 0x00
	Forced Mode = 0x10
	Normal Mode = 0x30
)

// Oversampling trades measurement time for resolution.
type Oversampling byte

const (
	Sampling1X Oversampling = iota
	Sampling2X
	Sampling4X
	Sampling8X
	Sampling16X
	Sampling32X
)

// OutputDataRate in Hz, as the datasheet's subdivision of 200 Hz. Heavy
// oversampling needs a slower rate or the chip reports a configuration error.
type OutputDataRate byte

const (
	Odr200 OutputDataRate = iota
	Odr100
	Odr50
	Odr25
	Odr12p5
	Odr6p25
	Odr3p1
	Odr1p5
)

// FilterCoefficient is the IIR filter strength.
type FilterCoefficient byte

const (
	Coeff0 FilterCoefficient = iota
	Coeff1
	Coeff3
	Coeff7
	Coeff15
	Coeff31
	Coeff63
	Coeff127
)
