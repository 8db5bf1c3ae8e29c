package item

const (
	// MaxSlots is the number of card slots carried by every item.
	MaxSlots = 4
	// MaxStorage is the capacity of an account's personal storage.
	MaxStorage = 600
	// MaxInventory is the capacity of a character's inventory.
	MaxInventory = 100
	// MaxGuildStorageRows is the largest guild storage that fits the 16-bit count field.
	MaxGuildStorageRows = 65535
)

// EquipMask is a bitmask over body slots.
type EquipMask uint16

const (
	EquipHeadLow EquipMask = 0x0001
	EquipHandR   EquipMask = 0x0002
	EquipGarment EquipMask = 0x0004
	EquipAccL    EquipMask = 0x0008
	EquipArmor   EquipMask = 0x0010
	EquipHandL   EquipMask = 0x0020
	EquipShoes   EquipMask = 0x0040
	EquipAccR    EquipMask = 0x0080
	EquipHeadTop EquipMask = 0x0100
	EquipHeadMid EquipMask = 0x0200
)

// Has reports whether any bit of slot is set in m.
func (m EquipMask) Has(slot EquipMask) bool { return m&slot != 0 }

// BoundKind restricts which ownership scope an item may be traded into.
type BoundKind uint8

const (
	BoundNone      BoundKind = 0
	BoundAccount   BoundKind = 1
	BoundGuild     BoundKind = 2
	BoundParty     BoundKind = 3 // reserved
	BoundCharacter BoundKind = 4
)

func (b BoundKind) String() string {
	switch b {
	case BoundNone:
		return "none"
	case BoundAccount:
		return "account"
	case BoundGuild:
		return "guild"
	case BoundParty:
		return "party"
	case BoundCharacter:
		return "character"
	default:
		return "unknown"
	}
}

// Item is one inventory or storage slot.
type Item struct {
	ID         int32
	NameID     int32
	Amount     int16
	Equip      EquipMask
	Identify   bool
	Refine     uint8
	Attribute  uint8
	ExpireTime uint32 // epoch seconds, 0 = never
	Bound      BoundKind
	UniqueID   uint64
	Cards      [MaxSlots]int16
}

// Empty reports whether the slot holds nothing.
func (it *Item) Empty() bool { return it.NameID == 0 }

// SameContent reports whether two items carry identical attributes,
// ignoring the store-assigned row ID.
func SameContent(a, b Item) bool {
	a.ID, b.ID = 0, 0
	return a == b
}
