package packet

import (
	"fmt"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/item"
)

const (
	loadGuildStorageLen   = HeaderSize + 8
	guildStorageFailLen   = HeaderSize + 8
	guildStorageHeaderLen = HeaderSize + 11
	saveGuildStorageHdr   = HeaderSize + 10
	saveGuildStorageAck   = HeaderSize + 9
	itemBoundRetrieveLen  = HeaderSize + 10
	itemBoundAckLen       = HeaderSize + 6
)

// Open flags of OpGuildStorageLoaded.
const (
	StorageKeepClosed uint8 = 0
	StorageOpen       uint8 = 1
)

// LoadGuildStorage asks for a guild's storage on behalf of an account.
//
//	0x3018 <len>.W <account id>.L <guild id>.L
type LoadGuildStorage struct {
	AccountID uint32
	GuildID   uint32
}

// DecodeLoadGuildStorage decodes f. On a length mismatch the fields that
// were present are still returned so the caller can answer the request.
func DecodeLoadGuildStorage(f Frame) (LoadGuildStorage, error) {
	r := NewReader(f.Payload)
	m := LoadGuildStorage{AccountID: r.Uint32(), GuildID: r.Uint32()}
	if err := expectLength(f, loadGuildStorageLen); err != nil {
		return m, err
	}
	return m, r.Err()
}

func EncodeLoadGuildStorage(m LoadGuildStorage) ([]byte, error) {
	w := NewWriter(OpLoadGuildStorage, loadGuildStorageLen)
	w.Uint32(m.AccountID)
	w.Uint32(m.GuildID)
	return w.Bytes()
}

// GuildStorageLoaded carries a guild's storage to a world process.
// GuildID 0 marks a failure; the body then stops after the guild id.
//
//	0x3818 <len>.W <account id>.L <guild id>.L <flag>.B <count>.W {<item>.36B}*count
//	0x3818 <len>.W <account id>.L 0.L
type GuildStorageLoaded struct {
	AccountID uint32
	GuildID   uint32
	OpenFlag  uint8
	Items     []item.Item
}

// Failed reports whether the message is the minimal failure body.
func (m GuildStorageLoaded) Failed() bool { return m.GuildID == 0 }

// GuildStorageLoadedFailure is the minimal failure body for accountID.
func GuildStorageLoadedFailure(accountID uint32) GuildStorageLoaded {
	return GuildStorageLoaded{AccountID: accountID}
}

// EncodeGuildStorageLoaded fails with ErrFrameTooLarge when the items do not
// fit the 16-bit length field.
func EncodeGuildStorageLoaded(m GuildStorageLoaded) ([]byte, error) {
	if m.Failed() {
		w := NewWriter(OpGuildStorageLoaded, guildStorageFailLen)
		w.Uint32(m.AccountID)
		w.Uint32(0)
		return w.Bytes()
	}
	size := guildStorageHeaderLen + len(m.Items)*ItemRecordSize
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d items need %d bytes", ErrFrameTooLarge, len(m.Items), size)
	}
	w := NewWriter(OpGuildStorageLoaded, size)
	w.Uint32(m.AccountID)
	w.Uint32(m.GuildID)
	w.Uint8(m.OpenFlag)
	w.Uint16(uint16(len(m.Items)))
	for _, it := range m.Items {
		w.Item(it)
	}
	return w.Bytes()
}

func DecodeGuildStorageLoaded(f Frame) (GuildStorageLoaded, error) {
	r := NewReader(f.Payload)
	m := GuildStorageLoaded{AccountID: r.Uint32(), GuildID: r.Uint32()}
	if m.Failed() {
		if err := expectLength(f, guildStorageFailLen); err != nil {
			return m, err
		}
		return m, r.Err()
	}
	m.OpenFlag = r.Uint8()
	count := int(r.Uint16())
	if err := expectLength(f, guildStorageHeaderLen+count*ItemRecordSize); err != nil {
		return m, err
	}
	m.Items = make([]item.Item, 0, count)
	for i := 0; i < count; i++ {
		m.Items = append(m.Items, r.Item())
	}
	return m, r.Err()
}

// SaveGuildStorage replaces a guild's storage with the carried items.
//
//	0x3019 <len>.W <account id>.L <guild id>.L <count>.W {<item>.36B}*count
type SaveGuildStorage struct {
	AccountID uint32
	GuildID   uint32
	Items     []item.Item
}

// SaveGuildStorageLen is the only valid total length for count items.
func SaveGuildStorageLen(count int) int {
	return saveGuildStorageHdr + count*ItemRecordSize
}

// DecodeSaveGuildStorage validates the declared length against the item
// count before reading any item. On ErrFramingMismatch AccountID and GuildID
// are still filled in when present, and Items is nil.
func DecodeSaveGuildStorage(f Frame) (SaveGuildStorage, error) {
	r := NewReader(f.Payload)
	m := SaveGuildStorage{AccountID: r.Uint32(), GuildID: r.Uint32()}
	count := int(r.Uint16())
	if err := r.Err(); err != nil {
		return m, fmt.Errorf("%w: %v", ErrFramingMismatch, err)
	}
	if err := expectLength(f, SaveGuildStorageLen(count)); err != nil {
		return m, err
	}
	m.Items = make([]item.Item, 0, count)
	for i := 0; i < count; i++ {
		m.Items = append(m.Items, r.Item())
	}
	return m, r.Err()
}

func EncodeSaveGuildStorage(m SaveGuildStorage) ([]byte, error) {
	w := NewWriter(OpSaveGuildStorage, SaveGuildStorageLen(len(m.Items)))
	w.Uint32(m.AccountID)
	w.Uint32(m.GuildID)
	w.Uint16(uint16(len(m.Items)))
	for _, it := range m.Items {
		w.Item(it)
	}
	return w.Bytes()
}

// SaveGuildStorageAck answers OpSaveGuildStorage.
//
//	0x3819 <len>.W <account id>.L <guild id>.L <fail>.B
type SaveGuildStorageAck struct {
	AccountID uint32
	GuildID   uint32
	Fail      bool
}

func EncodeSaveGuildStorageAck(m SaveGuildStorageAck) ([]byte, error) {
	w := NewWriter(OpSaveGuildStorageAck, saveGuildStorageAck)
	w.Uint32(m.AccountID)
	w.Uint32(m.GuildID)
	w.Bool(m.Fail)
	return w.Bytes()
}

func DecodeSaveGuildStorageAck(f Frame) (SaveGuildStorageAck, error) {
	r := NewReader(f.Payload)
	m := SaveGuildStorageAck{AccountID: r.Uint32(), GuildID: r.Uint32(), Fail: r.Uint8() != 0}
	if err := expectLength(f, saveGuildStorageAck); err != nil {
		return m, err
	}
	return m, r.Err()
}

// ItemBoundRetrieve asks the store owner to pull a character's guild-bound
// items into guild storage.
//
//	0x3056 <len>.W <char id>.L <account id>.L <guild id>.W
type ItemBoundRetrieve struct {
	CharID    uint32
	AccountID uint32
	GuildID   uint16
}

func DecodeItemBoundRetrieve(f Frame) (ItemBoundRetrieve, error) {
	r := NewReader(f.Payload)
	m := ItemBoundRetrieve{CharID: r.Uint32(), AccountID: r.Uint32(), GuildID: r.Uint16()}
	if err := expectLength(f, itemBoundRetrieveLen); err != nil {
		return m, err
	}
	return m, r.Err()
}

func EncodeItemBoundRetrieve(m ItemBoundRetrieve) ([]byte, error) {
	w := NewWriter(OpItemBoundRetrieve, itemBoundRetrieveLen)
	w.Uint32(m.CharID)
	w.Uint32(m.AccountID)
	w.Uint16(m.GuildID)
	return w.Bytes()
}

// ItemBoundAck tells the world process the retrieval is over and it may
// unlock the guild storage. AccountID is informational.
//
//	0x3856 <len>.W <account id>.L <guild id>.W
type ItemBoundAck struct {
	AccountID uint32
	GuildID   uint16
}

func EncodeItemBoundAck(m ItemBoundAck) ([]byte, error) {
	w := NewWriter(OpItemBoundAck, itemBoundAckLen)
	w.Uint32(m.AccountID)
	w.Uint16(m.GuildID)
	return w.Bytes()
}

func DecodeItemBoundAck(f Frame) (ItemBoundAck, error) {
	r := NewReader(f.Payload)
	m := ItemBoundAck{AccountID: r.Uint32(), GuildID: r.Uint16()}
	if err := expectLength(f, itemBoundAckLen); err != nil {
		return m, err
	}
	return m, r.Err()
}
