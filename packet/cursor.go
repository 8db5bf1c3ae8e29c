package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/item"
)

var order = binary.LittleEndian

// Reader is a bounds-checked cursor over a payload. The first out-of-range
// read records ErrShortBuffer; every later read returns zero values, so a
// decoder can read a whole message and check Err once.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first bounds violation, if any.
func (r *Reader) Err() error { return r.err }

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.Remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, r.Remaining())
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return order.Uint16(b)
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return order.Uint32(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return order.Uint64(b)
}

func (r *Reader) Int16() int16 { return int16(r.Uint16()) }
func (r *Reader) Int32() int32 { return int32(r.Uint32()) }

// Item reads one ItemRecordSize-byte item record.
func (r *Reader) Item() item.Item {
	var it item.Item
	it.ID = r.Int32()
	it.NameID = r.Int32()
	it.Amount = r.Int16()
	it.Equip = item.EquipMask(r.Uint16())
	it.Identify = r.Uint8() != 0
	it.Refine = r.Uint8()
	it.Attribute = r.Uint8()
	for i := range it.Cards {
		it.Cards[i] = r.Int16()
	}
	it.ExpireTime = r.Uint32()
	it.Bound = item.BoundKind(r.Uint8())
	it.UniqueID = r.Uint64()
	return it
}

// Writer builds one frame. The header is reserved up front and the length
// field is filled in by Bytes.
type Writer struct {
	buf []byte
}

// NewWriter starts a frame for op with room for size bytes in total.
func NewWriter(op Opcode, size int) *Writer {
	w := &Writer{buf: make([]byte, HeaderSize, max(size, HeaderSize))}
	order.PutUint16(w.buf[0:2], uint16(op))
	return w
}

// Len returns the current frame length including the header.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) Uint16(v uint16) { w.buf = order.AppendUint16(w.buf, v) }

func (w *Writer) Uint32(v uint32) { w.buf = order.AppendUint32(w.buf, v) }

func (w *Writer) Uint64(v uint64) { w.buf = order.AppendUint64(w.buf, v) }

func (w *Writer) Int16(v int16) { w.Uint16(uint16(v)) }
func (w *Writer) Int32(v int32) { w.Uint32(uint32(v)) }

func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
		return
	}
	w.Uint8(0)
}

// Item appends one ItemRecordSize-byte item record.
func (w *Writer) Item(it item.Item) {
	w.Int32(it.ID)
	w.Int32(it.NameID)
	w.Int16(it.Amount)
	w.Uint16(uint16(it.Equip))
	w.Bool(it.Identify)
	w.Uint8(it.Refine)
	w.Uint8(it.Attribute)
	for _, c := range it.Cards {
		w.Int16(c)
	}
	w.Uint32(it.ExpireTime)
	w.Uint8(uint8(it.Bound))
	w.Uint64(it.UniqueID)
}

// Bytes stamps the length field and returns the encoded frame.
func (w *Writer) Bytes() ([]byte, error) {
	if len(w.buf) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(w.buf))
	}
	order.PutUint16(w.buf[2:4], uint16(len(w.buf)))
	return w.buf, nil
}
