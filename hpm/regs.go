package hpm

// Paged register interface of the HPM on the SPMI bus.
const (
	regIndex       = 0x00 // selected register, bit 7 set while latching
	regWidth       = 0x1f // width in bytes of the selected register
	regReadWindow  = 0x20 // first byte of the selected register, read side
	regWriteWindow = 0xa0 // first byte of the write staging area
)

// HPM registers.
const (
	RegMode       = 0x03
	RegCmd1       = 0x08
	RegData1      = 0x09
	RegIntEvent1  = 0x14
	RegIntEvent2  = 0x15
	RegIntMask1   = 0x16
	RegIntMask2   = 0x17
	RegIntClear1  = 0x18
	RegIntClear2  = 0x19
	RegPowerState = 0x20
	RegVersion    = 0x2f
)

const (
	// MaxRegisterSize is the widest HPM register.
	MaxRegisterSize = 64
	// IRQWidth is the number of bytes of the event, mask and clear registers used.
	IRQWidth = 9

	chunkSize = 16
)

// invalidCommand is reported in CMD1 when the device does not know a command.
var invalidCommand = [4]byte{'!', 'C', 'M', 'D'}

// registerSizes holds the width in bytes of the first 128 registers.
// Zero width registers are not implemented.
var registerSizes = [128]uint8{
	//0  1   2   3   4   5   6   7   8   9   a   b   c   d   e   f
	4, 4, 4, 4, 4, 16, 0, 0, 8, 64, 0, 0, 0, 0, 0, 8,
	8, 64, 4, 4, 13, 13, 11, 11, 11, 11, 4, 13, 11, 11, 8, 64,
	1, 6, 6, 4, 9, 0, 4, 8, 64, 64, 8, 36, 48, 52, 0, 64,
	61, 53, 51, 45, 0, 18, 12, 12, 10, 4, 4, 16, 36, 36, 64, 6,
	14, 49, 34, 26, 17, 21, 25, 49, 61, 61, 54, 64, 64, 29, 29, 29,
	6, 7, 7, 0, 0, 0, 7, 64, 37, 11, 1, 0, 0, 5, 22, 4,
	64, 64, 64, 4, 64, 64, 64, 4, 56, 16, 56, 64, 64, 64, 20, 0,
	0, 52, 64, 50, 55, 0, 0, 0, 40, 64, 56, 46, 12, 64, 33, 64,
}

// RegisterSize returns the width in bytes of reg, or 0 if reg is unknown.
func RegisterSize(reg uint8) int {
	if int(reg) >= len(registerSizes) {
		return 0
	}
	return int(registerSizes[reg])
}
