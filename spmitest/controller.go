// Package spmitest provides a simulated SPMI bus controller and slave
// devices for testing code built on package spmi without hardware.
//
// The Controller models the register interface of the real controller: a TX
// FIFO written through the CMD register and an RX FIFO read through the REPLY
// register. Commands are dispatched to Slaves as soon as their payload is
// complete and replies are queued in the RX FIFO immediately.
package spmitest

// Register offsets of the simulated controller.
const (
	RegStatus        = 0x00
	RegCmd           = 0x04
	RegReply         = 0x08
	RegBusEventsMask = 0x20
	RegIRQMask       = 0x40
	RegBusEventsFlag = 0x60
	RegIRQFlag       = 0x80
	RegCounters1     = 0xb0
	RegStatus2       = 0xbc
)

const (
	irqRxData  = 1 << 0
	irqAckFail = 1 << 7
)

// Request is a decoded command received by the controller.
type Request struct {
	Addr  uint8
	Cmd   uint8
	Extra uint16
	// Data is the outbound payload.
	Data []byte
	// ReplyLen is the reply payload length implied by the opcode.
	ReplyLen int
}

// Response is what a Slave answers to a Request.
type Response struct {
	Ack bool
	// Data is the reply payload. It is zero padded or truncated to the
	// request's ReplyLen.
	Data []byte
	// DroppedFrames is the number of trailing reply frames flagged as not
	// received in the parity field.
	DroppedFrames int
	// NoReply suppresses the reply word.
	NoReply bool
}

// Slave is a device on the simulated bus.
type Slave interface {
	Transact(req Request) Response
}

// SlaveFunc adapts a function to the Slave interface.
type SlaveFunc func(req Request) Response

func (f SlaveFunc) Transact(req Request) Response { return f(req) }

// Controller is a simulated SPMI controller. It implements spmi.Registers.
type Controller struct {
	// Slaves maps slave addresses to devices. Commands to absent slaves get no reply.
	Slaves map[uint8]Slave
	// TxStuck makes the status register report unsent commands in the TX FIFO.
	TxStuck bool
	// MangleReply, if set, rewrites every reply word before it is queued.
	MangleReply func(w uint32) uint32
	// Transactions records every dispatched request in order.
	Transactions []Request
	// Writes counts CMD register writes, command and payload words alike.
	Writes int

	IRQMask       uint32
	IRQFlag       uint32
	BusEventsMask [8]uint32
	BusEventsFlag [8]uint32
	// Counters1 and Status2 are returned as is by the read-only
	// COUNTERS_1 and STATUS_2 registers.
	Counters1 uint32
	Status2   uint32

	rx      []uint32
	pending *Request
	outLen  int
	payload []uint32
}

// NewController returns a controller with the given slaves attached.
func NewController(slaves map[uint8]Slave) *Controller {
	if slaves == nil {
		slaves = make(map[uint8]Slave)
	}
	return &Controller{Slaves: slaves}
}

// InjectRX queues words in the RX FIFO as if left over from a previous transaction.
func (c *Controller) InjectRX(words ...uint32) {
	c.rx = append(c.rx, words...)
}

// RxLen returns the number of words in the RX FIFO.
func (c *Controller) RxLen() int { return len(c.rx) }

// Read32 implements spmi.Registers.
func (c *Controller) Read32(off uint32) uint32 {
	switch {
	case off == RegStatus:
		var s uint32
		if len(c.rx) == 0 {
			s |= 1 << 24
		}
		s |= uint32(len(c.rx)&0xff) << 16
		if c.TxStuck {
			s |= 1
		} else {
			s |= 1 << 8
		}
		return s
	case off == RegReply:
		if len(c.rx) == 0 {
			return 0
		}
		w := c.rx[0]
		c.rx = c.rx[1:]
		if len(c.rx) == 0 {
			c.IRQFlag &^= irqRxData
		}
		return w
	case off == RegIRQMask:
		return c.IRQMask
	case off == RegIRQFlag:
		return c.IRQFlag
	case off == RegCounters1:
		return c.Counters1
	case off == RegStatus2:
		return c.Status2
	case off >= RegBusEventsMask && off < RegBusEventsMask+32:
		return c.BusEventsMask[(off-RegBusEventsMask)/4]
	case off >= RegBusEventsFlag && off < RegBusEventsFlag+32:
		return c.BusEventsFlag[(off-RegBusEventsFlag)/4]
	}
	return 0
}

// Write32 implements spmi.Registers.
func (c *Controller) Write32(off, v uint32) {
	switch {
	case off == RegCmd:
		c.Writes++
		c.pushTx(v)
	case off == RegIRQMask:
		c.IRQMask = v
	case off == RegIRQFlag:
		c.IRQFlag &^= v
	case off >= RegBusEventsMask && off < RegBusEventsMask+32:
		c.BusEventsMask[(off-RegBusEventsMask)/4] = v
	case off >= RegBusEventsFlag && off < RegBusEventsFlag+32:
		c.BusEventsFlag[(off-RegBusEventsFlag)/4] &^= v
	}
}

func (c *Controller) pushTx(w uint32) {
	if c.pending == nil {
		if w&(1<<15) == 0 {
			return // Inactive command words are ignored.
		}
		cmd := uint8(w)
		c.pending = &Request{
			Addr:     uint8(w>>8) & 0x7f,
			Cmd:      cmd,
			Extra:    uint16(w >> 16),
			ReplyLen: ReplyLen(cmd),
		}
		c.outLen = PayloadLen(cmd)
		c.payload = c.payload[:0]
	} else {
		c.payload = append(c.payload, w)
	}
	if len(c.payload) < (c.outLen+3)/4 {
		return
	}
	req := *c.pending
	c.pending = nil
	if c.outLen > 0 {
		req.Data = make([]byte, c.outLen)
		for i := range req.Data {
			req.Data[i] = byte(c.payload[i/4] >> (8 * (i % 4)))
		}
	}
	c.dispatch(req)
}

func (c *Controller) dispatch(req Request) {
	c.Transactions = append(c.Transactions, req)
	slave, ok := c.Slaves[req.Addr]
	if !ok {
		return
	}
	resp := slave.Transact(req)
	if resp.NoReply {
		return
	}
	frames := min(len(resp.Data), req.ReplyLen) - resp.DroppedFrames
	var parity uint32
	if frames > 0 {
		parity = 1<<frames - 1
	}
	w := parity<<16 | uint32(req.Addr)<<8 | uint32(req.Cmd)
	if resp.Ack {
		w |= 1 << 15
	} else {
		c.IRQFlag |= irqAckFail
	}
	if c.MangleReply != nil {
		w = c.MangleReply(w)
	}
	c.rx = append(c.rx, w)
	data := make([]byte, (req.ReplyLen+3)/4*4)
	copy(data[:req.ReplyLen], resp.Data)
	for i := 0; i < len(data); i += 4 {
		c.rx = append(c.rx, uint32(data[i])|uint32(data[i+1])<<8|uint32(data[i+2])<<16|uint32(data[i+3])<<24)
	}
	c.IRQFlag |= irqRxData
}

// PayloadLen returns the number of outbound payload bytes of an opcode.
func PayloadLen(cmd uint8) int {
	switch {
	case cmd <= 0x0f: // Extended write.
		return int(cmd&0xf) + 1
	case cmd >= 0x30 && cmd <= 0x37: // Extended write long.
		return int(cmd&0x7) + 1
	}
	return 0
}

// ReplyLen returns the number of reply payload bytes of an opcode.
func ReplyLen(cmd uint8) int {
	switch {
	case cmd >= 0x20 && cmd <= 0x2f: // Extended read.
		return int(cmd&0xf) + 1
	case cmd >= 0x38 && cmd <= 0x3f: // Extended read long.
		return int(cmd&0x7) + 1
	case cmd >= 0x60 && cmd <= 0x7f: // Register read.
		return 1
	case cmd == 0x1c: // Slave descriptor.
		return 10
	}
	return 0
}
