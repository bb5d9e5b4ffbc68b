package frames

import (
	"slices"
	"sort"
	"sync"
)

// Registry maps object ids to their FrameObjects ordered by timestamp.
// It expects a single writer; readers may run concurrently with it.
type Registry struct {
	mu      sync.RWMutex
	objects map[string][]FrameObject
}

// NewRegistry creates a registry seeded with the given objects.
func NewRegistry(objs ...FrameObject) *Registry {
	r := &Registry{objects: make(map[string][]FrameObject)}
	for _, o := range objs {
		r.Register(o)
	}
	return r
}

// Register adds a FrameObject to its id's track, keeping the track sorted.
// Objects with equal timestamps stay in insertion order.
func (r *Registry) Register(obj FrameObject) {
	r.mu.Lock()
	defer r.mu.Unlock()

	track := append(r.objects[obj.ID], obj)
	sort.SliceStable(track, func(i, j int) bool {
		return track[i].Timestamp < track[j].Timestamp
	})
	r.objects[obj.ID] = track
}

// FrameObjects returns a copy of the track for id, oldest first.
func (r *Registry) FrameObjects(id string) []FrameObject {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.objects[id])
}

// FrameObjectsAroundTimestamp returns the entries bracketing ts: next is the
// first entry at or after ts and prev the one before it. When ts precedes the
// track both are the first entry; when it follows the track they are the last
// two entries. ok is false for an unknown id.
func (r *Registry) FrameObjectsAroundTimestamp(id string, ts int64) (prev, next FrameObject, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	track := r.objects[id]
	switch len(track) {
	case 0:
		return FrameObject{}, FrameObject{}, false
	case 1:
		return track[0], track[0], true
	}

	i := sort.Search(len(track), func(i int) bool { return track[i].Timestamp >= ts })
	if i == len(track) {
		return track[len(track)-2], track[len(track)-1], true
	}
	if i == 0 {
		return track[0], track[0], true
	}
	return track[i-1], track[i], true
}

// FrameObjectAt estimates the object at ts by interpolating its neighbours.
func (r *Registry) FrameObjectAt(id string, ts int64) (FrameObject, bool) {
	prev, next, ok := r.FrameObjectsAroundTimestamp(id, ts)
	if !ok {
		return FrameObject{}, false
	}
	if prev.Timestamp == next.Timestamp || ts <= prev.Timestamp {
		return prev, true
	}
	if ts >= next.Timestamp {
		return next, true
	}
	return prev.InterpolateWithNextFrame(next, ts), true
}

// ObjectIDs returns the sorted ids of tracks whose first entry has objType.
// An empty objType matches every track.
func (r *Registry) ObjectIDs(objType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, track := range r.objects {
		if len(track) == 0 {
			continue
		}
		if objType == "" || track[0].Type == objType {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// FrameObjectsForType returns the tracks of every object of objType, ordered by id.
func (r *Registry) FrameObjectsForType(objType string) [][]FrameObject {
	ids := r.ObjectIDs(objType)
	out := make([][]FrameObject, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.FrameObjects(id))
	}
	return out
}

// Len returns the number of tracks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
