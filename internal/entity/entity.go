// Package entity is the authoritative server's entity store: a flat table
// of fixed components indexed by id, rather than a type-erased component
// map. A static struct of the four components every networked entity in
// this module actually has — transform, network identity, animation state,
// and player-controller input state — needs no type registry, no
// reflection, and no per-lookup map access, at the cost of carrying unused
// fields on entities that don't need them (every entity here is a player,
// so none go unused).
package entity

import "github.com/StoreStation/vnet/pkg/physics"

// ID identifies an entity for the lifetime of the server process.
type ID uint64

// Transform is an entity's position and orientation in world space.
type Transform struct {
	Position physics.Vec3
	Rotation physics.Vec3 // yaw, pitch, roll in radians
}

// NetworkIdentity marks an entity as replicated.
type NetworkIdentity struct {
	NetworkID       ID
	OwnerID         ID
	ServerControlled bool
}

// AnimationState is the replicated subset of an entity's animation: enough
// to drive remote-entity animation blending on peers, not a full local
// animation graph.
type AnimationState struct {
	State   uint8
	Playing bool
}

// PlayerController is the authoritative movement state this module's
// physics package consumes every tick.
type PlayerController struct {
	Velocity      physics.Vec3
	Mode          physics.Mode
	Grounded      bool
	InWater       bool
	LastInputSeq  uint32
}

// Entity is one networked player: a fixed bundle of the four components
// above, plus the bookkeeping the server's connection table needs.
type Entity struct {
	ID     ID
	Name   string
	Active bool

	Transform        Transform
	NetworkIdentity  NetworkIdentity
	Animation        AnimationState
	Controller       PlayerController
}

// Manager owns every live entity, keyed by ID.
type Manager struct {
	entities map[ID]*Entity
	nextID   ID
}

// NewManager creates an empty entity manager. IDs are assigned starting at
// 1; 0 is reserved as "no entity".
func NewManager() *Manager {
	return &Manager{entities: make(map[ID]*Entity), nextID: 1}
}

// Create allocates a new active entity named name and returns it.
func (m *Manager) Create(name string) *Entity {
	id := m.nextID
	m.nextID++

	e := &Entity{ID: id, Name: name, Active: true}
	e.NetworkIdentity = NetworkIdentity{NetworkID: id, OwnerID: id, ServerControlled: true}
	m.entities[id] = e
	return e
}

// Get returns the entity with the given id, or nil if it doesn't exist.
func (m *Manager) Get(id ID) *Entity {
	return m.entities[id]
}

// Destroy removes an entity from the table.
func (m *Manager) Destroy(id ID) {
	delete(m.entities, id)
}

// All returns every live entity. The returned slice is a snapshot; mutating
// it does not affect the manager.
func (m *Manager) All() []*Entity {
	out := make([]*Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	return out
}

// Count returns the number of live entities.
func (m *Manager) Count() int {
	return len(m.entities)
}
