package hart

import (
	"github.com/Michaelsladkov/sc-trace-debugger/decoder"
	"github.com/Michaelsladkov/sc-trace-debugger/traceerr"
	"github.com/Michaelsladkov/sc-trace-debugger/traceline"
)

// ReadDword reconstructs the 64-bit value at an 8-byte-aligned address as
// it stood immediately after the last committed event, by scanning the
// event history backwards from the cursor.
//
// Known limitation, carried forward unresolved by design: the effective
// address of a historical event E is computed from the *current* register
// file, not the value rs1 held at E's time. This is correct whenever
// nothing between E and the cursor overwrote rs1, which holds for the
// vast majority of load/store sequences but is not proven in general.
func (h *Hart) ReadDword(address uint64) (uint64, error) {
	if address%8 != 0 {
		return 0, traceerr.New(traceerr.MisalignedAddress, "address 0x%x is not 8-byte aligned", address)
	}
	return h.scanDword(address), nil
}

// ReadWord reconstructs a 32-bit value; address must be 4-byte aligned.
func (h *Hart) ReadWord(address uint64) (uint32, error) {
	if address%4 != 0 {
		return 0, traceerr.New(traceerr.MisalignedAddress, "address 0x%x is not 4-byte aligned", address)
	}
	base := address &^ 0x7
	dword := h.scanDword(base)
	shift := (address - base) * 8
	return uint32(dword >> shift), nil
}

// ReadHalfword reconstructs a 16-bit value; address must be 2-byte aligned.
func (h *Hart) ReadHalfword(address uint64) (uint16, error) {
	if address%2 != 0 {
		return 0, traceerr.New(traceerr.MisalignedAddress, "address 0x%x is not 2-byte aligned", address)
	}
	base := address &^ 0x7
	dword := h.scanDword(base)
	shift := (address - base) * 8
	return uint16(dword >> shift), nil
}

// ReadByte reconstructs a single byte. Byte access is always aligned by
// construction, so (unlike the wider reads) this cannot fail on alignment.
func (h *Hart) ReadByte(address uint64) uint8 {
	base := address &^ 0x7
	dword := h.scanDword(base)
	shift := (address - base) * 8
	return uint8(dword >> shift)
}

// scanDword implements the backward scan for an 8-byte-aligned base
// address. It returns 0 if no matching event is found.
func (h *Hart) scanDword(base uint64) uint64 {
	for i := h.cursor - 1; i >= 0; i-- {
		ev := h.events[i]
		instr := decoder.Decode(ev.Instr)

		var rs1 uint8
		switch instr.Kind {
		case decoder.Load:
			rs1 = instr.Rs1
		case decoder.Store:
			rs1 = instr.Rs1
		default:
			continue
		}

		baseReg := regRead(&h.intRegs, rs1)
		accessed := (baseReg + uint64(int64(instr.Offset))) &^ 0x7
		if accessed != base {
			continue
		}

		switch instr.Kind {
		case decoder.Load:
			if ev.HasUpdate {
				return ev.Update.NewVal
			}
			return 0
		case decoder.Store:
			return h.recoverStoredValue(i, instr.Rs2)
		}
	}
	return 0
}

// recoverStoredValue finds the value rs2 held at the time of the store
// event at index storeIdx, by scanning further backward for the most
// recent event that last wrote rs2.
func (h *Hart) recoverStoredValue(storeIdx int, rs2 uint8) uint64 {
	if rs2 == 0 {
		return 0
	}
	for i := storeIdx - 1; i >= 0; i-- {
		ev := h.events[i]
		if ev.HasUpdate && ev.Update.Reg.Kind == traceline.RegInt && ev.Update.Reg.Index == rs2 {
			return ev.Update.NewVal
		}
	}
	return 0
}
