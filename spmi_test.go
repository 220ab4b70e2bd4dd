package spmi

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/soypat/spmi/spmitest"
)

const testAddr = 0x4

func newTestDev(t *testing.T, slaves map[uint8]spmitest.Slave) (*Dev, *spmitest.Controller) {
	t.Helper()
	ctl := spmitest.NewController(slaves)
	var logger *slog.Logger
	if testing.Verbose() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelTrace}))
	}
	d := Open(ctl, Config{Logger: logger, Delay: func(time.Duration) {}})
	return d, ctl
}

// echoSlave acks every command and returns a counting byte pattern.
func echoSlave(req spmitest.Request) spmitest.Response {
	data := make([]byte, req.ReplyLen)
	for i := range data {
		data[i] = byte(i + 1)
	}
	return spmitest.Response{Ack: true, Data: data}
}

func TestRawTransactionEcho(t *testing.T) {
	d, ctl := newTestDev(t, map[uint8]spmitest.Slave{testAddr: spmitest.SlaveFunc(echoSlave)})
	reply, err := d.RawTransaction(testAddr, CmdExtRead|2, 0x20, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !reply.Ack || reply.Addr != testAddr || reply.Cmd != CmdExtRead|2 {
		t.Errorf("unexpected reply %+v", reply)
	}
	if !bytes.Equal(reply.Data, []byte{1, 2, 3}) {
		t.Errorf("got data %x", reply.Data)
	}
	if len(ctl.Transactions) != 1 || ctl.Transactions[0].Extra != 0x20 {
		t.Errorf("unexpected transactions %+v", ctl.Transactions)
	}
}

func TestRawTransactionEchoMismatch(t *testing.T) {
	tests := []struct {
		name   string
		mangle func(uint32) uint32
	}{
		{name: "cmd", mangle: func(w uint32) uint32 { return w ^ 0x01 }},
		{name: "addr", mangle: func(w uint32) uint32 { return w ^ 0x100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ctl := newTestDev(t, map[uint8]spmitest.Slave{testAddr: spmitest.SlaveFunc(echoSlave)})
			ctl.MangleReply = tt.mangle
			_, err := d.RawTransaction(testAddr, CmdWakeup, 0, nil, 0)
			if !errors.Is(err, ErrProtocolMismatch) {
				t.Fatalf("want ErrProtocolMismatch, got %v", err)
			}
		})
	}
}

func TestRawTransactionParity(t *testing.T) {
	short := spmitest.SlaveFunc(func(req spmitest.Request) spmitest.Response {
		return spmitest.Response{Ack: true, Data: []byte{0xaa, 0xbb}}
	})
	d, _ := newTestDev(t, map[uint8]spmitest.Slave{testAddr: short})
	reply, err := d.RawTransaction(testAddr, CmdExtRead|2, 0, nil, 3)
	if !errors.Is(err, ErrParity) {
		t.Fatalf("want ErrParity, got %v", err)
	}
	if reply.Data != nil || reply.Ack {
		t.Errorf("parity failure returned data %+v", reply)
	}
}

func TestRawTransactionBusy(t *testing.T) {
	d, ctl := newTestDev(t, map[uint8]spmitest.Slave{testAddr: spmitest.SlaveFunc(echoSlave)})
	ctl.TxStuck = true
	_, err := d.RawTransaction(testAddr, CmdReset, 0, nil, 0)
	if !errors.Is(err, ErrBusBusy) {
		t.Fatalf("want ErrBusBusy, got %v", err)
	}
	if ctl.Writes != 0 {
		t.Errorf("busy bus was written %d times", ctl.Writes)
	}
}

func TestRawTransactionTimeout(t *testing.T) {
	var delays int
	ctl := spmitest.NewController(nil)
	d := Open(ctl, Config{Delay: func(time.Duration) { delays++ }})
	_, err := d.RawTransaction(testAddr, CmdReset, 0, nil, 0)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if delays != rxPollAttempts {
		t.Errorf("polled %d times, want %d", delays, rxPollAttempts)
	}
}

func TestRawTransactionDrainsStaleRx(t *testing.T) {
	d, ctl := newTestDev(t, map[uint8]spmitest.Slave{testAddr: spmitest.SlaveFunc(echoSlave)})
	ctl.InjectRX(0xdeadbeef, 0x12345678)
	ack, err := d.Wakeup(testAddr)
	if err != nil {
		t.Fatal(err)
	}
	if !ack {
		t.Error("expected ack")
	}
	if ctl.RxLen() != 0 {
		t.Errorf("%d words left in RX FIFO", ctl.RxLen())
	}
}

func TestInvalidArgumentsDoNotTouchBus(t *testing.T) {
	d, ctl := newTestDev(t, map[uint8]spmitest.Slave{testAddr: spmitest.SlaveFunc(echoSlave)})
	big := make([]byte, 17)
	checks := []struct {
		name string
		fn   func() error
	}{
		{"ext-write-0", func() error { _, err := d.ExtWrite(testAddr, 0, nil); return err }},
		{"ext-write-17", func() error { _, err := d.ExtWrite(testAddr, 0, big); return err }},
		{"ext-read-0", func() error { _, _, err := d.ExtRead(testAddr, 0, 0); return err }},
		{"ext-read-17", func() error { _, _, err := d.ExtRead(testAddr, 0, 17); return err }},
		{"ext-write-long-9", func() error { _, err := d.ExtWriteLong(testAddr, 0, big[:9]); return err }},
		{"ext-read-long-9", func() error { _, _, err := d.ExtReadLong(testAddr, 0, 9); return err }},
		{"addr-16", func() error { _, err := d.Reset(16); return err }},
		{"zero-write-0x80", func() error { _, err := d.ZeroWrite(testAddr, 0x80); return err }},
		{"reg-read-32", func() error { _, _, err := d.RegRead(testAddr, 32); return err }},
		{"raw-in-17", func() error { _, err := d.RawTransaction(testAddr, CmdExtRead, 0, nil, 17); return err }},
	}
	for _, c := range checks {
		if err := c.fn(); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: want ErrInvalidArgument, got %v", c.name, err)
		}
	}
	if ctl.Writes != 0 {
		t.Errorf("invalid requests caused %d bus writes", ctl.Writes)
	}
}

func TestExtWritePayload(t *testing.T) {
	var got spmitest.Request
	slave := spmitest.SlaveFunc(func(req spmitest.Request) spmitest.Response {
		got = req
		return spmitest.Response{Ack: true}
	})
	d, ctl := newTestDev(t, map[uint8]spmitest.Slave{testAddr: slave})
	payload := []byte{1, 2, 3, 4, 5, 6, 7}
	ack, err := d.ExtWrite(testAddr, 0xa0, payload)
	if err != nil || !ack {
		t.Fatalf("ack=%v err=%v", ack, err)
	}
	if got.Cmd != CmdExtWrite|6 || got.Extra != 0xa0 {
		t.Errorf("unexpected command %#x extra %#x", got.Cmd, got.Extra)
	}
	if !bytes.Equal(got.Data, payload) {
		t.Errorf("slave received %x", got.Data)
	}
	// Command word plus two payload words.
	if ctl.Writes != 3 {
		t.Errorf("got %d CMD writes, want 3", ctl.Writes)
	}
}

func TestZeroWriteEncoding(t *testing.T) {
	d, ctl := newTestDev(t, map[uint8]spmitest.Slave{testAddr: spmitest.SlaveFunc(echoSlave)})
	if _, err := d.ZeroWrite(testAddr, 0x2f); err != nil {
		t.Fatal(err)
	}
	req := ctl.Transactions[0]
	if req.Cmd != 0xaf || req.Extra != 0x2f00 {
		t.Errorf("zero write encoded as cmd=%#x extra=%#x", req.Cmd, req.Extra)
	}
}

func TestLongHelpers(t *testing.T) {
	mem := make(map[uint16]byte)
	slave := spmitest.SlaveFunc(func(req spmitest.Request) spmitest.Response {
		switch {
		case req.Cmd >= CmdExtWriteL && req.Cmd < CmdExtReadL:
			for i, b := range req.Data {
				mem[req.Extra+uint16(i)] = b
			}
			return spmitest.Response{Ack: true}
		case req.Cmd >= CmdExtReadL && req.Cmd < CmdWrite:
			data := make([]byte, req.ReplyLen)
			for i := range data {
				data[i] = mem[req.Extra+uint16(i)]
			}
			return spmitest.Response{Ack: true, Data: data}
		}
		return spmitest.Response{Ack: false}
	})
	d, _ := newTestDev(t, map[uint8]spmitest.Slave{testAddr: slave})
	const want = 0x0102030405060708
	if _, err := d.Write64(testAddr, 0x1000, want); err != nil {
		t.Fatal(err)
	}
	got, err := d.Read64(testAddr, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Read64=%#x want %#x", got, want)
	}
	if mem[0x1000] != 0x08 {
		t.Errorf("not little endian: first byte %#x", mem[0x1000])
	}
	v16, err := d.Read16(testAddr, 0x1006)
	if err != nil || v16 != 0x0102 {
		t.Errorf("Read16=%#x err=%v", v16, err)
	}
}

func TestSlaveDescriptor(t *testing.T) {
	d, _ := newTestDev(t, map[uint8]spmitest.Slave{testAddr: spmitest.SlaveFunc(echoSlave)})
	desc, err := d.SlaveDescriptor(testAddr)
	if err != nil {
		t.Fatal(err)
	}
	if len(desc) != SlaveDescriptorLen || desc[9] != 10 {
		t.Errorf("unexpected descriptor %x", desc)
	}
}

func TestIRQFlags(t *testing.T) {
	nack := spmitest.SlaveFunc(func(req spmitest.Request) spmitest.Response {
		return spmitest.Response{Ack: false}
	})
	d, _ := newTestDev(t, map[uint8]spmitest.Slave{testAddr: nack})
	ack, err := d.Sleep(testAddr)
	if err != nil {
		t.Fatal(err)
	}
	if ack {
		t.Error("expected NACK")
	}
	flags := d.IRQFlags()
	if flags&IRQAckFail == 0 {
		t.Fatalf("ack fail not latched: %s", flags)
	}
	d.ClearIRQFlags(IRQAckFail)
	if d.IRQFlags()&IRQAckFail != 0 {
		t.Error("ack fail not cleared")
	}
	if _, err := d.BusEventFlags(NumBusEventBanks); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("want ErrInvalidArgument for bank %d, got %v", NumBusEventBanks, err)
	}
}

func TestCloseTwice(t *testing.T) {
	d, _ := newTestDev(t, nil)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal("second close:", err)
	}
}

func TestClosedHandle(t *testing.T) {
	d, ctl := newTestDev(t, map[uint8]spmitest.Slave{testAddr: spmitest.SlaveFunc(echoSlave)})
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Reset(testAddr); !errors.Is(err, ErrClosed) {
		t.Errorf("Reset: want ErrClosed, got %v", err)
	}
	if _, err := d.RawTransaction(testAddr, CmdExtRead, 0, nil, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("RawTransaction: want ErrClosed, got %v", err)
	}
	if _, err := d.Read32(testAddr, 0x100); !errors.Is(err, ErrClosed) {
		t.Errorf("Read32: want ErrClosed, got %v", err)
	}
	if _, err := d.BusEventFlags(0); !errors.Is(err, ErrClosed) {
		t.Errorf("BusEventFlags: want ErrClosed, got %v", err)
	}
	if err := d.SetBusEventMask(0, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("SetBusEventMask: want ErrClosed, got %v", err)
	}
	if _, err := d.BusStalled(); !errors.Is(err, ErrClosed) {
		t.Errorf("BusStalled: want ErrClosed, got %v", err)
	}
	d.SetIRQMask(IRQAckFail)
	if d.IRQMask() != 0 || d.Status() != 0 {
		t.Error("closed handle read registers")
	}
	if ctl.Writes != 0 || ctl.IRQMask != 0 {
		t.Errorf("closed handle wrote registers: %d CMD writes, mask %#x", ctl.Writes, ctl.IRQMask)
	}
}

func TestBusHealth(t *testing.T) {
	d, ctl := newTestDev(t, nil)
	stalled, err := d.BusStalled()
	if err != nil || stalled {
		t.Fatalf("idle bus stalled=%v err=%v", stalled, err)
	}
	ctl.Status2 = 1
	ctl.Counters1 = 0xff01e205
	if stalled, _ = d.BusStalled(); !stalled {
		t.Error("STATUS_2 bit 0 not reported")
	}
	c, err := d.Counters()
	if err != nil {
		t.Fatal(err)
	}
	if c != [NumCounters]uint8{0x05, 0x22, 0x01, 0x3f} {
		t.Errorf("counters %#x", c)
	}
}

func TestRawTransactionReplyWords(t *testing.T) {
	for _, n := range []int{1, 3, 4, 5, 8, 13, MaxPayload} {
		d, ctl := newTestDev(t, map[uint8]spmitest.Slave{testAddr: spmitest.SlaveFunc(echoSlave)})
		reply, err := d.RawTransaction(testAddr, CmdExtRead|uint8(n-1), 0, nil, n)
		if err != nil {
			t.Fatalf("%d bytes: %v", n, err)
		}
		if len(reply.Data) != n || reply.Data[n-1] != byte(n) {
			t.Errorf("%d bytes: got %x", n, reply.Data)
		}
		if ctl.RxLen() != 0 {
			t.Errorf("%d bytes: %d words left in RX FIFO", n, ctl.RxLen())
		}
	}
}
