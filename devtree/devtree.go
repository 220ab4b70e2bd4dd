// Package devtree looks up devices in a flattened device tree blob.
// Paths are slash separated node names from the root, such as
// "/soc/spmi@23d0d9300/hpm@e".
package devtree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/platinasystems/fdt"
)

const (
	fdtMagic      = 0xd00dfeed
	fdtHeaderSize = 40

	defaultAddressCells = 2
)

var (
	ErrDeviceNotFound = errors.New("devtree: device not found")
	ErrMalformed      = errors.New("devtree: malformed blob")
)

// Lookup resolves device properties by node path.
type Lookup interface {
	// Reg returns the cells of the reg property of the node at path.
	Reg(path string) ([]uint32, error)
	// Property returns the raw value of property name of the node at path.
	Property(path, name string) ([]byte, error)
}

// Tree is a parsed device tree blob. It implements Lookup.
type Tree struct {
	t fdt.Tree
}

var _ Lookup = (*Tree)(nil)

// ReadFile parses the device tree blob in file name.
func ReadFile(name string) (*Tree, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse parses a big endian device tree blob.
func Parse(blob []byte) (tree *Tree, err error) {
	if len(blob) < fdtHeaderSize || binary.BigEndian.Uint32(blob) != fdtMagic {
		return nil, fmt.Errorf("%w: bad header", ErrMalformed)
	}
	size := binary.BigEndian.Uint32(blob[4:])
	offStruct := binary.BigEndian.Uint32(blob[8:])
	offStrings := binary.BigEndian.Uint32(blob[12:])
	if int(size) > len(blob) || offStruct >= size || offStrings > size {
		return nil, fmt.Errorf("%w: offsets out of range", ErrMalformed)
	}
	// fdt indexes the blob without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			tree, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()
	tree = &Tree{t: fdt.Tree{IsLittleEndian: false}}
	if err = tree.t.Parse(blob[:size]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tree.t.RootNode == nil {
		return nil, fmt.Errorf("%w: no root node", ErrMalformed)
	}
	return tree, nil
}

// Node returns the node at path.
func (t *Tree) Node(path string) (*fdt.Node, error) {
	n := t.t.RootNode
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		c, ok := n.Children[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
		}
		n = c
	}
	return n, nil
}

// Property implements Lookup.
func (t *Tree) Property(path, name string) ([]byte, error) {
	n, err := t.Node(path)
	if err != nil {
		return nil, err
	}
	v, ok := n.Properties[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s", ErrDeviceNotFound, path, name)
	}
	return v, nil
}

// Reg implements Lookup.
func (t *Tree) Reg(path string) ([]uint32, error) {
	v, err := t.Property(path, "reg")
	if err != nil {
		return nil, err
	}
	return t.t.PropUint32Slice(v), nil
}

// Compatible returns the paths of all nodes whose compatible property lists
// compat, sorted.
func (t *Tree) Compatible(compat string) []string {
	var paths []string
	var walk func(path string, n *fdt.Node)
	walk = func(path string, n *fdt.Node) {
		if v, ok := n.Properties["compatible"]; ok {
			for _, c := range t.t.PropStringSlice(v) {
				if c == compat {
					paths = append(paths, path)
					break
				}
			}
		}
		for name, c := range n.Children {
			walk(strings.TrimSuffix(path, "/")+"/"+name, c)
		}
	}
	walk("/", t.t.RootNode)
	sort.Strings(paths)
	return paths
}

// Address returns the first address of the reg property of the node at path,
// sized by the parent's #address-cells.
func Address(l Lookup, path string) (uint64, error) {
	reg, err := l.Reg(path)
	if err != nil {
		return 0, err
	}
	cells := defaultAddressCells
	if v, err := l.Property(parent(path), "#address-cells"); err == nil && len(v) == 4 {
		cells = int(binary.BigEndian.Uint32(v))
	}
	if cells < 1 || cells > 2 || len(reg) < cells {
		return 0, fmt.Errorf("%w: %s reg has %d cells, want %d", ErrMalformed, path, len(reg), cells)
	}
	var addr uint64
	for _, c := range reg[:cells] {
		addr = addr<<32 | uint64(c)
	}
	return addr, nil
}

func parent(path string) string {
	path = strings.TrimSuffix(path, "/")
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "/"
	}
	return path[:i]
}
