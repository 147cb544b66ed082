package types

// EntityID is a dense, non-negative identifier for an entity. IDs are drawn
// from the range [0, capacity) and recycled through the entity table's free
// list.
type EntityID int32

// InvalidEntityID sits outside the valid ID range. It is used wherever "no
// entity" must be representable.
const InvalidEntityID EntityID = -1

// Generation counts how many times an entity ID has been reclaimed. A handle
// minted for a previous generation of the same ID no longer resolves.
type Generation uint32

// ComponentID is a dense identifier for a registered component kind.
type ComponentID uint8

// SystemID is a dense identifier for a registered system, in [0, S).
type SystemID int

// InvalidSystemID is returned by lookups that fail to find a system.
const InvalidSystemID SystemID = -1

// Handle is an opaque (entity ID, generation) pair. A handle resolves iff its
// ID is not InvalidEntityID and the entity table's current generation at that
// ID equals the handle's generation.
type Handle struct {
	ID         EntityID   `json:"id"`
	Generation Generation `json:"generation"`
}

// InvalidHandle returns a handle that never resolves.
func InvalidHandle() Handle {
	return Handle{ID: InvalidEntityID}
}

// ComponentInfo is the registration record for a component kind, used by the
// log helpers and the declaration debug dump.
type ComponentInfo struct {
	ID   ComponentID `json:"component_id"`
	Name string      `json:"component_name"`
}
