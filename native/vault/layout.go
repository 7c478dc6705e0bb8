package vault

import (
	"encoding/binary"
	"fmt"
)

// EncodedSize is the fixed byte length of a persisted vault record:
// five 32-byte identifiers, nine 8-byte integers, four 1-byte fields and one
// reserved byte.
const EncodedSize = 5*32 + 9*8 + 4 + 1

// MarshalBinary encodes the vault into its fixed little-endian layout. Field
// order: asset, ledger id, fraction mint, total supply, creator, created at,
// status, reclaimed at, twap, total compensation, remaining compensation,
// reserved (always zero), min lp age, min reclaim %, min liquidity %, min volume %, initiator,
// initiated at, tokens in escrow.
func (v *Vault) MarshalBinary() ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("vault: nil record")
	}
	buf := make([]byte, EncodedSize)
	w := layoutWriter{buf: buf}
	w.id(v.AssetID)
	w.id(v.AssetLedgerID)
	w.id(v.FractionMint)
	w.u64(v.TotalSupply)
	w.id(v.Creator)
	w.i64(v.CreatedAt)
	w.u8(uint8(v.Status))
	w.i64(v.ReclaimedAt)
	w.u64(v.TWAPPriceAtReclaim)
	w.u64(v.TotalCompensation)
	w.u64(v.RemainingCompensation)
	w.u8(0)
	w.i64(v.MinLPAgeSeconds)
	w.u8(v.MinReclaimPercentage)
	w.u8(v.MinLiquidityPercent)
	w.u8(v.MinVolumePercent30d)
	w.id(v.ReclaimInitiator)
	w.i64(v.ReclaimInitiatedAt)
	w.u64(v.TokensInEscrow)
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (v *Vault) UnmarshalBinary(data []byte) error {
	if len(data) != EncodedSize {
		return fmt.Errorf("vault: encoded record must be %d bytes, got %d", EncodedSize, len(data))
	}
	r := layoutReader{buf: data}
	v.AssetID = r.id()
	v.AssetLedgerID = r.id()
	v.FractionMint = r.id()
	v.TotalSupply = r.u64()
	v.Creator = r.id()
	v.CreatedAt = r.i64()
	v.Status = Status(r.u8())
	v.ReclaimedAt = r.i64()
	v.TWAPPriceAtReclaim = r.u64()
	v.TotalCompensation = r.u64()
	v.RemainingCompensation = r.u64()
	if reserved := r.u8(); reserved != 0 {
		return fmt.Errorf("vault: reserved byte must be zero, got %d", reserved)
	}
	v.MinLPAgeSeconds = r.i64()
	v.MinReclaimPercentage = r.u8()
	v.MinLiquidityPercent = r.u8()
	v.MinVolumePercent30d = r.u8()
	v.ReclaimInitiator = r.id()
	v.ReclaimInitiatedAt = r.i64()
	v.TokensInEscrow = r.u64()
	if !v.Status.Valid() {
		return fmt.Errorf("vault: invalid status %d", v.Status)
	}
	return nil
}

type layoutWriter struct {
	buf []byte
	off int
}

func (w *layoutWriter) id(v [32]byte) {
	copy(w.buf[w.off:], v[:])
	w.off += 32
}

func (w *layoutWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *layoutWriter) i64(v int64) { w.u64(uint64(v)) }

func (w *layoutWriter) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

type layoutReader struct {
	buf []byte
	off int
}

func (r *layoutReader) id() [32]byte {
	var out [32]byte
	copy(out[:], r.buf[r.off:r.off+32])
	r.off += 32
	return out
}

func (r *layoutReader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *layoutReader) i64() int64 { return int64(r.u64()) }

func (r *layoutReader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}
