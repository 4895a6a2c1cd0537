package forensics

import "sync"

// AssetKind is a class of guild asset whose changes arrive as whole-list
// updates and have to be diffed against the previous list.
type AssetKind uint8

const (
	AssetEmoji AssetKind = iota
	AssetSticker
)

// AssetRef identifies one emoji or sticker.
type AssetRef struct {
	ID   string
	Name string
}

type guildSnapshot struct {
	assets    [2]map[string]AssetRef
	rolePerms map[string]int64
}

// SnapshotStore remembers the last seen asset lists and role permissions per
// guild. The gateway cache is already updated when a handler runs, so
// before/after comparisons need their own copy.
type SnapshotStore struct {
	mu     sync.Mutex
	guilds map[string]*guildSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{guilds: make(map[string]*guildSnapshot)}
}

func (ss *SnapshotStore) guild(guildID string) *guildSnapshot {
	g, ok := ss.guilds[guildID]
	if !ok {
		g = &guildSnapshot{rolePerms: make(map[string]int64)}
		ss.guilds[guildID] = g
	}
	return g
}

// SeedAssets records the current list without reporting a diff; used when a
// guild becomes available.
func (ss *SnapshotStore) SeedAssets(guildID string, kind AssetKind, current []AssetRef) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.guild(guildID).assets[kind] = index(current)
}

// ReplaceAssets stores current as the new list and returns what was added
// and removed relative to the previous one. With no previous list nothing is
// reported.
func (ss *SnapshotStore) ReplaceAssets(guildID string, kind AssetKind, current []AssetRef) (added, removed []AssetRef) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	g := ss.guild(guildID)
	prev := g.assets[kind]
	next := index(current)
	g.assets[kind] = next
	if prev == nil {
		return nil, nil
	}

	for id, ref := range next {
		if _, ok := prev[id]; !ok {
			added = append(added, ref)
		}
	}
	for id, ref := range prev {
		if _, ok := next[id]; !ok {
			removed = append(removed, ref)
		}
	}
	return added, removed
}

// SwapRolePerms stores perms for a role and returns the previous value.
func (ss *SnapshotStore) SwapRolePerms(guildID, roleID string, perms int64) (prev int64, known bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	g := ss.guild(guildID)
	prev, known = g.rolePerms[roleID]
	g.rolePerms[roleID] = perms
	return prev, known
}

func (ss *SnapshotStore) ForgetRole(guildID, roleID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if g, ok := ss.guilds[guildID]; ok {
		delete(g.rolePerms, roleID)
	}
}

func (ss *SnapshotStore) ForgetGuild(guildID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.guilds, guildID)
}

func index(refs []AssetRef) map[string]AssetRef {
	m := make(map[string]AssetRef, len(refs))
	for _, r := range refs {
		m[r.ID] = r
	}
	return m
}
