package devtree

import (
	"encoding/binary"
	"errors"
	"testing"
)

// blobBuilder writes a minimal version 17 device tree blob.
type blobBuilder struct {
	structs []byte
	strings []byte
	strOff  map[string]int
}

func (b *blobBuilder) cell(v uint32) {
	b.structs = binary.BigEndian.AppendUint32(b.structs, v)
}

func (b *blobBuilder) pad() {
	for len(b.structs)%4 != 0 {
		b.structs = append(b.structs, 0)
	}
}

func (b *blobBuilder) begin(name string) {
	b.cell(1)
	b.structs = append(b.structs, name...)
	b.structs = append(b.structs, 0)
	b.pad()
}

func (b *blobBuilder) end() { b.cell(2) }

func (b *blobBuilder) prop(name string, value []byte) {
	if b.strOff == nil {
		b.strOff = make(map[string]int)
	}
	off, ok := b.strOff[name]
	if !ok {
		off = len(b.strings)
		b.strOff[name] = off
		b.strings = append(b.strings, name...)
		b.strings = append(b.strings, 0)
	}
	b.cell(3)
	b.cell(uint32(len(value)))
	b.cell(uint32(off))
	b.structs = append(b.structs, value...)
	b.pad()
}

func (b *blobBuilder) propCells(name string, cells ...uint32) {
	var v []byte
	for _, c := range cells {
		v = binary.BigEndian.AppendUint32(v, c)
	}
	b.prop(name, v)
}

func (b *blobBuilder) blob() []byte {
	b.cell(9)
	const rsvmapSize = 16
	offStruct := fdtHeaderSize + rsvmapSize
	offStrings := offStruct + len(b.structs)
	total := offStrings + len(b.strings)
	hdr := []uint32{
		fdtMagic, uint32(total), uint32(offStruct), uint32(offStrings), fdtHeaderSize,
		17, 16, 0, uint32(len(b.strings)), uint32(len(b.structs)),
	}
	var out []byte
	for _, v := range hdr {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	out = append(out, make([]byte, rsvmapSize)...)
	out = append(out, b.structs...)
	return append(out, b.strings...)
}

const (
	spmiPath = "/soc/spmi@23d0d9300"
	hpmPath  = spmiPath + "/hpm@e"
)

func testBlob() []byte {
	var b blobBuilder
	b.begin("")
	b.propCells("#address-cells", 2)
	b.begin("soc")
	b.propCells("#address-cells", 2)
	b.begin("spmi@23d0d9300")
	b.prop("compatible", []byte("apple,spmi\x00"))
	b.propCells("reg", 0x2, 0x3d0d9300, 0x0, 0x100)
	b.propCells("#address-cells", 2)
	b.begin("hpm@e")
	b.prop("compatible", []byte("usbc,sn201202x,spmi\x00usbc,tps6598x\x00"))
	b.propCells("reg", 0xe, 0x0)
	b.end()
	b.begin("hpm@f")
	b.prop("compatible", []byte("usbc,sn201202x,spmi\x00"))
	b.propCells("reg", 0xf, 0x0)
	b.end()
	b.end()
	b.end()
	b.end()
	return b.blob()
}

func TestLookup(t *testing.T) {
	tree, err := Parse(testBlob())
	if err != nil {
		t.Fatal(err)
	}
	base, err := Address(tree, spmiPath)
	if err != nil {
		t.Fatal(err)
	}
	if base != 0x23d0d9300 {
		t.Errorf("spmi base %#x", base)
	}
	reg, err := tree.Reg(hpmPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(reg) != 2 || reg[0] != 0xe {
		t.Errorf("hpm reg %v", reg)
	}
	compat, err := tree.Property(spmiPath, "compatible")
	if err != nil || string(compat) != "apple,spmi\x00" {
		t.Errorf("compatible %q err %v", compat, err)
	}
}

func TestCompatible(t *testing.T) {
	tree, err := Parse(testBlob())
	if err != nil {
		t.Fatal(err)
	}
	got := tree.Compatible("usbc,sn201202x,spmi")
	want := []string{hpmPath, spmiPath + "/hpm@f"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v want %v", got, want)
	}
	if got := tree.Compatible("usbc,tps6598x"); len(got) != 1 {
		t.Errorf("second compatible string not matched: %v", got)
	}
	if got := tree.Compatible("apple,nothing"); len(got) != 0 {
		t.Errorf("unexpected match %v", got)
	}
}

func TestNotFound(t *testing.T) {
	tree, err := Parse(testBlob())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tree.Reg("/soc/i2c@0"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("missing node: want ErrDeviceNotFound, got %v", err)
	}
	if _, err := tree.Property(hpmPath, "interrupts"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("missing property: want ErrDeviceNotFound, got %v", err)
	}
	if _, err := Address(tree, "/soc"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("node without reg: want ErrDeviceNotFound, got %v", err)
	}
}

func TestMalformed(t *testing.T) {
	blob := testBlob()
	bad := append([]byte(nil), blob...)
	bad[0] = 0
	for name, b := range map[string][]byte{
		"empty":     nil,
		"magic":     bad,
		"truncated": blob[:len(blob)-8],
	} {
		if _, err := Parse(b); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: want ErrMalformed, got %v", name, err)
		}
	}
}

func TestParent(t *testing.T) {
	for path, want := range map[string]string{
		"/":          "/",
		"/soc":       "/",
		"/soc/spmi":  "/soc",
		"/soc/spmi/": "/soc",
	} {
		if got := parent(path); got != want {
			t.Errorf("parent(%q) = %q want %q", path, got, want)
		}
	}
}
