package spmi

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidArgument is returned for malformed caller input. No register
	// access is performed when it is returned.
	ErrInvalidArgument = errors.New("spmi: invalid argument")
	// ErrBusBusy is returned when the TX FIFO still holds a previous command.
	ErrBusBusy = errors.New("spmi: TX FIFO has unsent commands")
	// ErrTimeout is returned when the RX FIFO stays empty for the whole polling budget.
	ErrTimeout = errors.New("spmi: timeout waiting for RX data")
	// ErrProtocolMismatch is returned when the reply echoes a different slave or command.
	// It indicates a desynchronized FIFO, not a transient condition.
	ErrProtocolMismatch = errors.New("spmi: unexpected reply, leftover RX data?")
	// ErrParity is returned when the reply frame parity does not cover exactly
	// the requested number of bytes.
	ErrParity = errors.New("spmi: response frames not received correctly")
	// ErrClosed is returned by calls on a Dev after Close.
	ErrClosed = errors.New("spmi: use of closed bus handle")
)

// Controller register offsets from the bus base address.
const (
	regStatus = 0x00 // FIFO status (RO)
	regCmd    = 0x04 // push a word to the TX FIFO (WO)
	regReply  = 0x08 // pop a word from the RX FIFO (RO)

	regBusEventsMask = 0x20 // 8 consecutive words, one per event bank (RW)
	regIRQMask       = 0x40 // controller IRQ enable (RW)
	regBusEventsFlag = 0x60 // 8 consecutive words, write 1 to clear
	regIRQFlag       = 0x80 // controller IRQ flags, write 1 to clear
	regCounters1     = 0xb0 // four 6-bit counters, one per byte (RO)
	regStatus2       = 0xbc // bit 0 set when the controller cannot drive the bus (RO)

	// RegisterWindowSize is the span of controller registers used by this package.
	RegisterWindowSize = 0x100
)

// Command word fields.
const (
	cmdExtraShift = 16
	cmdActive     = 1 << 15
	cmdAddrShift  = 8
	cmdAddrMask   = 0x7f
	cmdCmdMask    = 0xff
)

// Reply word fields.
const (
	replyParityShift = 16
	replyAck         = 1 << 15
	replyAddrShift   = 8
	replyAddrMask    = 0x7f
	replyCmdMask     = 0xff
)

// Status register fields.
const (
	statusRxEmpty      = 1 << 24
	statusRxCountShift = 16
	statusTxEmpty      = 1 << 8
	statusCountMask    = 0xff
)

// SPMI command opcodes.
const (
	CmdReset     = 0x10
	CmdSleep     = 0x11
	CmdShutdown  = 0x12
	CmdWakeup    = 0x13
	CmdSlaveDesc = 0x1c

	CmdExtWrite  = 0x00 // | (len-1), len 1..16
	CmdExtRead   = 0x20 // | (len-1), len 1..16
	CmdExtWriteL = 0x30 // | (len-1), len 1..8
	CmdExtReadL  = 0x38 // | (len-1), len 1..8
	CmdWrite     = 0x40 // | reg, reg < 32
	CmdRead      = 0x60 // | reg, reg < 32
	CmdZeroWrite = 0x80 // | value, value < 128
)

const (
	// MaxPayload is the largest inbound or outbound payload of a single transaction.
	MaxPayload = 16
	// MaxLongPayload is the largest payload of the long extended commands.
	MaxLongPayload = 8
	// MaxAddr is the largest slave address.
	MaxAddr = 0xf
	// SlaveDescriptorLen is the length of the slave descriptor block.
	SlaveDescriptorLen = 10
)

// Status is the controller FIFO status register.
type Status uint32

// RxEmpty returns true if there is no reply data to pop from the RX FIFO.
func (s Status) RxEmpty() bool { return s&statusRxEmpty != 0 }

// RxCount returns the number of words in the RX FIFO.
func (s Status) RxCount() uint8 { return uint8(s>>statusRxCountShift) & statusCountMask }

// TxEmpty returns true if all commands were sent.
func (s Status) TxEmpty() bool { return s&statusTxEmpty != 0 }

// TxCount returns the number of words in the TX FIFO.
func (s Status) TxCount() uint8 { return uint8(s) & statusCountMask }

func (s Status) String() string {
	str := "rx="
	if s.RxEmpty() {
		str += "empty"
	} else {
		str += strconv.Itoa(int(s.RxCount()))
	}
	str += " tx="
	if s.TxEmpty() {
		str += "empty"
	} else {
		str += strconv.Itoa(int(s.TxCount()))
	}
	return str
}

// Reply is a decoded reply word along with the payload that followed it.
type Reply struct {
	Ack    bool
	Parity uint16
	Addr   uint8
	Cmd    uint8
	Data   []byte
}

func makeCmdWord(addr, cmd uint8, extra uint16) uint32 {
	return uint32(extra)<<cmdExtraShift | cmdActive |
		(uint32(addr)&cmdAddrMask)<<cmdAddrShift | uint32(cmd)&cmdCmdMask
}

func decodeReply(w uint32) Reply {
	return Reply{
		Ack:    w&replyAck != 0,
		Parity: uint16(w >> replyParityShift),
		Addr:   uint8(w>>replyAddrShift) & replyAddrMask,
		Cmd:    uint8(w & replyCmdMask),
	}
}

// frameMask returns the parity field expected for n received bytes.
func frameMask(n int) uint16 { return uint16(1)<<n - 1 }

// IRQs is the bitfield of the controller IRQ_MASK and IRQ_FLAG registers.
type IRQs uint32

const (
	// IRQRxData is set while there is data in the RX FIFO.
	IRQRxData IRQs = 1 << 0
	// IRQReadFail1 is set when a read command failed.
	IRQReadFail1 IRQs = 1 << 6
	// IRQAckFail is set when a command was not ACKed.
	IRQAckFail IRQs = 1 << 7
	// IRQReadFail2 is set when a read command failed.
	IRQReadFail2 IRQs = 1 << 11
)

func (i IRQs) String() (s string) {
	if i == 0 {
		return "none"
	}
	if i&IRQRxData != 0 {
		s += "rxdata "
	}
	if i&(IRQReadFail1|IRQReadFail2) != 0 {
		s += "readfail "
	}
	if i&IRQAckFail != 0 {
		s += "ackfail "
	}
	if other := i &^ (IRQRxData | IRQReadFail1 | IRQReadFail2 | IRQAckFail); other != 0 {
		s += "other=0x" + strconv.FormatUint(uint64(other), 16) + " "
	}
	return s[:len(s)-1]
}
