package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit multipliers for the page size field of a memory layout string.
const (
	KiB = 1024
	MiB = 1024 * 1024
)

// maxMemory bounds pageCount*pageSize of a parsed layout.
const maxMemory int64 = 1 << 32

// layoutPattern matches a single-segment DfuSe memory descriptor:
//
//	@<name>/<hexAddress>/<pageCount><'x'|'*'><pageSize><unit><perm>
var layoutPattern = regexp.MustCompile(
	`^@([^/]+)/(?:0[xX])?([0-9A-Fa-f]{1,8})/([0-9]+)[x*]([0-9]+)([KkMm ]?)([a-g])\s*$`)

type permissions struct {
	readable, writable, erasable bool
}

// permissionTable maps the permission letter to access rights as defined
// by the device family. The letters are overlapping flag sets, not an ordinal.
var permissionTable = map[byte]permissions{
	'a': {readable: true},
	'b': {erasable: true},
	'c': {readable: true, erasable: true},
	'd': {writable: true},
	'e': {writable: true, erasable: true},
	'f': {writable: true, erasable: true},
	'g': {readable: true, writable: true, erasable: true},
}

// ParseMemoryLayout decodes the interface string descriptor of a DfuSe
// alternate setting, e.g. "@Internal Flash  /0x08000000/064*0001Kg".
//
// It returns false when the string does not match the grammar; callers
// must then treat bounds and permissions as unknown.
func ParseMemoryLayout(desc string) (*MemoryLayout, bool) {
	m := layoutPattern.FindStringSubmatch(desc)
	if m == nil {
		return nil, false
	}

	addr, err := strconv.ParseUint(m[2], 16, 32)
	if err != nil {
		return nil, false
	}
	pageCount, err := strconv.Atoi(m[3])
	if err != nil || pageCount <= 0 {
		return nil, false
	}
	pageSize, err := strconv.Atoi(m[4])
	if err != nil || pageSize <= 0 {
		return nil, false
	}

	mult := 1
	switch m[5] {
	case "K", "k":
		mult = KiB
	case "M", "m":
		mult = MiB
	}
	// the memory must fit the 32-bit address space
	if int64(pageSize) > maxMemory/int64(mult) {
		return nil, false
	}
	pageSize *= mult
	if int64(pageCount) > maxMemory/int64(pageSize) {
		return nil, false
	}

	perm := permissionTable[m[6][0]]

	return &MemoryLayout{
		Name:      strings.TrimSpace(m[1]),
		Address:   uint32(addr),
		PageCount: pageCount,
		PageSize:  pageSize,
		Readable:  perm.readable,
		Writable:  perm.writable,
		Erasable:  perm.erasable,
	}, true
}
