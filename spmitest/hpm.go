package spmitest

import "bytes"

// HPM register numbers known to the simulated device.
const (
	hpmIndex      = 0x00
	hpmMode       = 0x03
	hpmCmd1       = 0x08
	hpmData1      = 0x09
	hpmIntEvent1  = 0x14
	hpmIntEvent2  = 0x15
	hpmIntClear1  = 0x18
	hpmIntClear2  = 0x19
	hpmPowerState = 0x20
	hpmVersion    = 0x2f

	hpmWidth       = 0x1f
	hpmReadWindow  = 0x20
	hpmWriteWindow = 0xa0
	hpmWindowSize  = 0x40
)

// HPMRegisterSizes is the width in bytes of each paged register of the HPM.
var HPMRegisterSizes = [128]uint8{
	4, 4, 4, 4, 4, 16, 0, 0, 8, 64, 0, 0, 0, 0, 0, 8,
	8, 64, 4, 4, 13, 13, 11, 11, 11, 11, 4, 13, 11, 11, 8, 64,
	1, 6, 6, 4, 9, 0, 4, 8, 64, 64, 8, 36, 48, 52, 0, 64,
	61, 53, 51, 45, 0, 18, 12, 12, 10, 4, 4, 16, 36, 36, 64, 6,
	14, 49, 34, 26, 17, 21, 25, 49, 61, 61, 54, 64, 64, 29, 29, 29,
	6, 7, 7, 0, 0, 0, 7, 64, 37, 11, 1, 0, 0, 5, 22, 4,
	64, 64, 64, 4, 64, 64, 64, 4, 56, 16, 56, 64, 64, 64, 20, 0,
	0, 52, 64, 50, 55, 0, 0, 0, 40, 64, 56, 46, 12, 64, 33, 64,
}

// CommandFunc handles a 4CC command. It receives the contents of DATA1 and
// returns the output to place in DATA1.
type CommandFunc func(in []byte) (out []byte)

// HPM simulates a USB-PD controller answering on the SPMI bus through the
// paged register interface: register 0 selects a register, register 0x1F
// reports its width, 0x20 onwards reads it and 0xA0 onwards stages a write
// that is committed by selecting the same register again.
type HPM struct {
	// Regs holds the register contents, sized by HPMRegisterSizes.
	Regs [128][]byte
	// Asleep devices NACK everything but Wakeup.
	Asleep bool
	// NackSelects is the number of upcoming register 0 writes to NACK.
	NackSelects int
	// NotReadyReads is the number of upcoming index reads that report
	// missing frames, as a device still latching the index does.
	NotReadyReads int
	// WrongIndexReads is the number of upcoming index reads that return a
	// register other than the selected one.
	WrongIndexReads int
	// CommandPolls is the number of CMD1 reads after a command is issued
	// until the command completes. Zero completes on the first read.
	CommandPolls int
	// Commands holds command handlers by token. SSPS is handled built-in
	// when absent.
	Commands map[string]CommandFunc
	// FailCommands makes commands report "!CMD" in CMD1 when they complete,
	// after their handler has run.
	FailCommands bool

	// Selects counts register 0 writes received, NACKed or not.
	Selects int
	// CommandReads counts CMD1 reads since the last command was issued.
	CommandReads int
	// LastCommand is the token of the last issued command.
	LastCommand string
	// LastCommandData is the content of DATA1 when the last command was issued.
	LastCommandData []byte

	index   uint8
	staged  [hpmWindowSize]byte
	nstaged int
	dirty   bool
	running CommandFunc
}

// NewHPM returns an awake simulated HPM in application mode with power
// state 3 (S3).
func NewHPM() *HPM {
	h := &HPM{}
	for i := range h.Regs {
		h.Regs[i] = make([]byte, HPMRegisterSizes[i])
	}
	copy(h.Regs[hpmMode], "APP ")
	copy(h.Regs[hpmVersion], "v3.1.14")
	h.Regs[hpmPowerState][0] = 3
	return h
}

// Index returns the currently selected register.
func (h *HPM) Index() uint8 { return h.index }

// RaiseEvents sets event bits in INT_EVENT1 (bits 0..71) and INT_EVENT2
// (bits 72..143).
func (h *HPM) RaiseEvents(bits ...int) {
	for _, b := range bits {
		reg := hpmIntEvent1
		if b >= 72 {
			reg = hpmIntEvent2
			b -= 72
		}
		h.Regs[reg][b/8] |= 1 << (b % 8)
	}
}

// Transact implements Slave.
func (h *HPM) Transact(req Request) Response {
	switch {
	case req.Cmd == 0x13: // Wakeup.
		h.Asleep = false
		return Response{Ack: true}
	case h.Asleep:
		return Response{Ack: false, DroppedFrames: req.ReplyLen}
	case req.Cmd == 0x11: // Sleep.
		h.Asleep = true
		return Response{Ack: true}
	case req.Cmd&0x80 != 0:
		return h.zeroWrite(req.Cmd & 0x7f)
	case req.Cmd <= 0x0f:
		return h.extWrite(uint8(req.Extra), req.Data)
	case req.Cmd >= 0x20 && req.Cmd <= 0x2f:
		return h.extRead(uint8(req.Extra), req.ReplyLen)
	}
	return Response{Ack: true}
}

func (h *HPM) zeroWrite(v uint8) Response {
	h.Selects++
	if h.NackSelects > 0 {
		h.NackSelects--
		return Response{Ack: false}
	}
	if h.dirty && v == h.index {
		h.commit()
	} else {
		h.index = v
	}
	h.dirty = false
	h.nstaged = 0
	return Response{Ack: true}
}

func (h *HPM) extWrite(reg uint8, p []byte) Response {
	if reg < hpmWriteWindow {
		return Response{Ack: true}
	}
	off := int(reg - hpmWriteWindow)
	n := copy(h.staged[off:], p)
	h.nstaged = max(h.nstaged, off+n)
	h.dirty = true
	return Response{Ack: true}
}

func (h *HPM) extRead(reg uint8, n int) Response {
	switch {
	case reg == hpmIndex:
		if h.NotReadyReads > 0 {
			h.NotReadyReads--
			return Response{Ack: true, Data: make([]byte, n), DroppedFrames: n}
		}
		got := h.index
		if h.WrongIndexReads > 0 {
			h.WrongIndexReads--
			got = (h.index + 1) & 0x7f
		}
		return Response{Ack: true, Data: []byte{got}}
	case reg == hpmWidth:
		return Response{Ack: true, Data: []byte{byte(len(h.Regs[h.index]))}}
	case reg >= hpmReadWindow && reg < hpmReadWindow+hpmWindowSize:
		off := int(reg - hpmReadWindow)
		if h.index == hpmCmd1 && off == 0 && h.running != nil {
			h.pollCommand()
		}
		data := make([]byte, n)
		if r := h.Regs[h.index]; off < len(r) {
			copy(data, r[off:])
		}
		return Response{Ack: true, Data: data}
	}
	return Response{Ack: true, Data: make([]byte, n)}
}

func (h *HPM) commit() {
	reg := h.Regs[h.index]
	copy(reg, h.staged[:h.nstaged])
	switch h.index {
	case hpmIntClear1:
		clearBits(h.Regs[hpmIntEvent1], reg)
	case hpmIntClear2:
		clearBits(h.Regs[hpmIntEvent2], reg)
	case hpmCmd1:
		h.issue()
	}
}

func (h *HPM) issue() {
	token := string(h.Regs[hpmCmd1][:4])
	h.LastCommand = token
	h.LastCommandData = bytes.Clone(h.Regs[hpmData1])
	h.CommandReads = 0
	fn, ok := h.Commands[token]
	if !ok && token == "SSPS" {
		fn, ok = h.setPowerState, true
	}
	if !ok {
		copy(h.Regs[hpmCmd1], "!CMD")
		return
	}
	h.running = fn
}

func (h *HPM) pollCommand() {
	h.CommandReads++
	if h.CommandReads <= h.CommandPolls {
		return
	}
	out := h.running(bytes.Clone(h.Regs[hpmData1]))
	h.running = nil
	clear(h.Regs[hpmData1])
	copy(h.Regs[hpmData1], out)
	if h.FailCommands {
		copy(h.Regs[hpmCmd1], "!CMD")
		return
	}
	clear(h.Regs[hpmCmd1][:4])
}

func (h *HPM) setPowerState(in []byte) []byte {
	h.Regs[hpmPowerState][0] = in[0]
	return nil
}

func clearBits(dst, mask []byte) {
	for i := range dst {
		if i < len(mask) {
			dst[i] &^= mask[i]
		}
	}
}
