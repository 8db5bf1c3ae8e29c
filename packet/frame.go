package packet

import (
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is opcode(u16) + length(u16).
	HeaderSize = 4
	// MaxFrameSize is the largest length the 16-bit length field can carry.
	MaxFrameSize = 0xFFFF
	// ItemRecordSize is the encoded size of one item record.
	ItemRecordSize = 36
)

var (
	ErrShortBuffer     = errors.New("packet: short buffer")
	ErrBadLength       = errors.New("packet: length smaller than header")
	ErrFrameTooLarge   = errors.New("packet: frame exceeds 16-bit length")
	ErrFramingMismatch = errors.New("packet: declared length does not match payload")
)

// Opcode identifies a message kind on the inter-server link.
type Opcode uint16

const (
	OpLoadGuildStorage    Opcode = 0x3018
	OpSaveGuildStorage    Opcode = 0x3019
	OpItemBoundRetrieve   Opcode = 0x3056
	OpGuildStorageLoaded  Opcode = 0x3818
	OpSaveGuildStorageAck Opcode = 0x3819
	OpItemBoundAck        Opcode = 0x3856
)

func (op Opcode) String() string {
	switch op {
	case OpLoadGuildStorage:
		return "load_guild_storage"
	case OpSaveGuildStorage:
		return "save_guild_storage"
	case OpItemBoundRetrieve:
		return "item_bound_retrieve"
	case OpGuildStorageLoaded:
		return "guild_storage_loaded"
	case OpSaveGuildStorageAck:
		return "save_guild_storage_ack"
	case OpItemBoundAck:
		return "item_bound_ack"
	default:
		return fmt.Sprintf("0x%04x", uint16(op))
	}
}

// Frame is one decoded message. Length is the declared total length.
type Frame struct {
	Op      Opcode
	Length  uint16
	Payload []byte
}

// ReadFrame reads one length-prefixed frame from r. A declared length below
// the header size is unrecoverable because the next frame boundary is lost.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	f := Frame{
		Op:     Opcode(order.Uint16(hdr[0:2])),
		Length: order.Uint16(hdr[2:4]),
	}
	if f.Length < HeaderSize {
		return f, fmt.Errorf("%w: opcode %s declared %d", ErrBadLength, f.Op, f.Length)
	}
	f.Payload = make([]byte, int(f.Length)-HeaderSize)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return f, err
	}
	return f, nil
}

// expectLength rejects frames whose declared length differs from want.
func expectLength(f Frame, want int) error {
	if int(f.Length) != want {
		return fmt.Errorf("%w: %s declared %d, expected %d", ErrFramingMismatch, f.Op, f.Length, want)
	}
	return nil
}
