// Package covis implements the keyframe covisibility graph: weighted
// edges between keyframes derived from shared map-point observations, a
// weight-sorted neighbor view, a parent pointer, loop edges, and the
// lifecycle flags that gate keyframe destruction.
package covis

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/dreamwaterfound/ssvo-go/camera"
)

var nextKeyFrameID uint64

// Feature is a single 2-D observation of a map-point (or, for seed
// features, a candidate not yet promoted to a map-point).
type Feature struct {
	Position r2.Point
	MapPoint MapPoint
}

// MapPoint is the external collaborator a keyframe's observation map
// references: is-bad status, the set of keyframes observing it, and
// observation removal. Map-point creation and lifecycle are out of scope
// for this package.
type MapPoint interface {
	IsBad() bool
	Observations() map[*KeyFrame]Feature
	RemoveObservation(kf *KeyFrame)
}

// weightedNeighbor pairs a neighboring keyframe with the edge weight
// (shared-map-point count) it was computed with.
type weightedNeighbor struct {
	kf     *KeyFrame
	weight int
}

// KeyFrame is an entity shared by the graph and the map: an immutable
// projection snapshot (id, source frame id, intrinsics, pose) plus mutable
// graph state guarded by two mutexes. Lock order is feature mutex before
// connection mutex, and neither is ever held across a call into another
// keyframe or map-point.
type KeyFrame struct {
	id      uint64
	frameID uint64
	k       *mat.Dense
	pose    *camera.Pose

	// LoopClosureDone gates SetErase's release of the not-erase
	// protection. A nil value keeps the protection permanently sticky --
	// the flag never clears until a caller supplies a signal.
	LoopClosureDone func() bool

	// Logger records lifecycle transitions (self-marked bad, destruction,
	// deferred destruction). A nil value silently disables logging, since
	// not every caller (in particular, tests) wires one up.
	Logger golog.Logger

	featureMu     sync.Mutex
	mptFts        map[MapPoint]Feature
	seedFts       []Feature
	featuresInBow []Feature

	connMu     sync.RWMutex
	connected  map[*KeyFrame]int
	ordered    []*KeyFrame
	parent     *KeyFrame
	loopEdges  map[*KeyFrame]struct{}
	notErase   bool
	toBeErase  bool
	isBad      bool
}

// New builds a KeyFrame from a frame snapshot: the next process-wide id,
// the source frame's id, its intrinsics and pose, and its feature
// observations. The first keyframe constructed in a process gets id 0 and
// is immortal under SetBad.
func New(frameID uint64, k *mat.Dense, pose *camera.Pose, features map[MapPoint]Feature) *KeyFrame {
	mptFts := make(map[MapPoint]Feature, len(features))
	for mp, ft := range features {
		mptFts[mp] = ft
	}
	return &KeyFrame{
		id:        atomic.AddUint64(&nextKeyFrameID, 1) - 1,
		frameID:   frameID,
		k:         k,
		pose:      pose,
		mptFts:    mptFts,
		loopEdges: make(map[*KeyFrame]struct{}),
	}
}

// ID returns the keyframe's immutable process-wide id.
func (kf *KeyFrame) ID() uint64 { return kf.id }

// FrameID returns the id of the source frame this keyframe was built from.
func (kf *KeyFrame) FrameID() uint64 { return kf.frameID }

// K returns the keyframe's intrinsic matrix snapshot.
func (kf *KeyFrame) K() *mat.Dense { return kf.k }

// Pose returns the keyframe's pose snapshot.
func (kf *KeyFrame) Pose() *camera.Pose { return kf.pose }

// AddObservation records a map-point observation under the feature lock.
func (kf *KeyFrame) AddObservation(mp MapPoint, ft Feature) {
	kf.featureMu.Lock()
	defer kf.featureMu.Unlock()
	if kf.mptFts == nil {
		kf.mptFts = make(map[MapPoint]Feature)
	}
	kf.mptFts[mp] = ft
}

// AddSeedFeature appends a candidate feature not yet promoted to a
// map-point observation.
func (kf *KeyFrame) AddSeedFeature(ft Feature) {
	kf.featureMu.Lock()
	defer kf.featureMu.Unlock()
	kf.seedFts = append(kf.seedFts, ft)
}

// SetFeaturesInArea installs the secondary feature list GetFeaturesInArea
// scans.
func (kf *KeyFrame) SetFeaturesInArea(fts []Feature) {
	kf.featureMu.Lock()
	defer kf.featureMu.Unlock()
	kf.featuresInBow = fts
}

// UpdateConnections recomputes this keyframe's edges from its current
// map-point observations: snapshot observations under the feature lock,
// tally co-observers excluding self, mark self bad if the tally is empty,
// otherwise add an edge to every neighbor at or above threshold (calling
// their AddConnection, a deliberate re-entrant call into another
// keyframe's connection lock), falling back to the last sub-threshold
// candidate seen if none qualifies, then swap the weight-sorted result into
// connected/ordered/parent under the connection lock.
func (kf *KeyFrame) UpdateConnections(threshold int) {
	if kf.IsBad() {
		return
	}

	kf.featureMu.Lock()
	fts := make([]Feature, 0, len(kf.mptFts))
	for _, ft := range kf.mptFts {
		fts = append(fts, ft)
	}
	kf.featureMu.Unlock()

	tally := make(map[*KeyFrame]int)
	for _, ft := range fts {
		if ft.MapPoint == nil || ft.MapPoint.IsBad() {
			continue
		}
		for observer := range ft.MapPoint.Observations() {
			if observer == kf {
				continue
			}
			tally[observer]++
		}
	}

	if len(tally) == 0 {
		if kf.Logger != nil {
			kf.Logger.Debugw("covis: keyframe has no covisible neighbors, marking bad", "id", kf.id)
		}
		kf.SetBad()
		return
	}

	// Iterate neighbors in a fixed (id-ascending) order so the "last
	// sub-threshold candidate wins" fallback rule is reproducible --
	// Go map iteration order is randomized and not itself meaningful.
	neighbors := make([]*KeyFrame, 0, len(tally))
	for n := range tally {
		neighbors = append(neighbors, n)
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].id < neighbors[j].id })

	var bestUnfit *KeyFrame
	bestUnfitCount := 0
	var fit []weightedNeighbor
	for _, n := range neighbors {
		count := tally[n]
		if count < threshold {
			bestUnfit = n
			bestUnfitCount = count
			continue
		}
		n.AddConnection(kf, count)
		fit = append(fit, weightedNeighbor{n, count})
	}

	if len(fit) == 0 {
		bestUnfit.AddConnection(kf, bestUnfitCount)
		fit = append(fit, weightedNeighbor{bestUnfit, bestUnfitCount})
	}

	sort.SliceStable(fit, func(i, j int) bool { return fit[i].weight > fit[j].weight })

	kf.connMu.Lock()
	kf.connected = make(map[*KeyFrame]int, len(fit))
	ordered := make([]*KeyFrame, len(fit))
	maxWeight := -1
	var parent *KeyFrame
	for i, w := range fit {
		kf.connected[w.kf] = w.weight
		ordered[i] = w.kf
		if w.weight >= maxWeight {
			maxWeight = w.weight
			parent = w.kf
		}
	}
	kf.ordered = ordered
	kf.parent = parent
	kf.connMu.Unlock()
}

// AddConnection sets the weight of the edge from kf to other, rebuilding
// the ordered view and parent pointer if the weight changed.
func (kf *KeyFrame) AddConnection(other *KeyFrame, weight int) {
	kf.connMu.Lock()
	if kf.connected == nil {
		kf.connected = make(map[*KeyFrame]int)
	}
	if existing, ok := kf.connected[other]; ok && existing == weight {
		kf.connMu.Unlock()
		return
	}
	kf.connected[other] = weight
	kf.connMu.Unlock()

	kf.rebuildOrdered()
}

// RemoveConnection deletes the edge from kf to other, if present, then
// rebuilds the ordered view and parent pointer.
func (kf *KeyFrame) RemoveConnection(other *KeyFrame) {
	kf.connMu.Lock()
	if kf.connected != nil {
		delete(kf.connected, other)
	}
	kf.connMu.Unlock()

	kf.rebuildOrdered()
}

// rebuildOrdered recomputes the weight-sorted ordered view and the parent
// pointer (the neighbor with the largest weight; ties resolved by
// last-seen in id-ascending traversal order).
func (kf *KeyFrame) rebuildOrdered() {
	kf.connMu.Lock()
	defer kf.connMu.Unlock()

	entries := make([]weightedNeighbor, 0, len(kf.connected))
	for n, w := range kf.connected {
		entries = append(entries, weightedNeighbor{n, w})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].kf.id < entries[j].kf.id })
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].weight > entries[j].weight })

	ordered := make([]*KeyFrame, len(entries))
	maxWeight := -1
	var parent *KeyFrame
	for i, e := range entries {
		ordered[i] = e.kf
		if e.weight >= maxWeight {
			maxWeight = e.weight
			parent = e.kf
		}
	}
	kf.ordered = ordered
	kf.parent = parent
}

// GetConnectedKeyFrames returns up to num keyframes from the strongest end
// of the ordered view whose weight is at least minFts. num = -1 returns
// all qualifying neighbors.
func (kf *KeyFrame) GetConnectedKeyFrames(num, minFts int) []*KeyFrame {
	kf.connMu.RLock()
	defer kf.connMu.RUnlock()

	if num == -1 {
		num = len(kf.ordered)
	}

	out := make([]*KeyFrame, 0, num)
	for _, n := range kf.ordered {
		if len(out) >= num {
			break
		}
		if kf.connected[n] < minFts {
			break
		}
		out = append(out, n)
	}
	return out
}

// GetSubConnectedKeyFrames performs a one-hop expansion: start from the
// full first-ring neighborhood, collect each neighbor's neighbors
// (excluding self and the first ring), count multiplicities, and return
// either all candidates (num = -1) or the top num by multiplicity.
func (kf *KeyFrame) GetSubConnectedKeyFrames(num int) []*KeyFrame {
	firstRing := kf.GetConnectedKeyFrames(-1, 0)
	firstRingSet := make(map[*KeyFrame]struct{}, len(firstRing))
	for _, n := range firstRing {
		firstRingSet[n] = struct{}{}
	}

	tally := make(map[*KeyFrame]int)
	for _, n := range firstRing {
		for _, sub := range n.GetConnectedKeyFrames(-1, 0) {
			if sub == kf {
				continue
			}
			if _, inRing := firstRingSet[sub]; inRing {
				continue
			}
			tally[sub]++
		}
	}

	candidates := make([]*KeyFrame, 0, len(tally))
	for c := range tally {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id < candidates[j].id })

	if num == -1 {
		return candidates
	}

	sort.SliceStable(candidates, func(i, j int) bool { return tally[candidates[i]] > tally[candidates[j]] })
	if len(candidates) > num {
		candidates = candidates[:num]
	}
	return candidates
}

// SetNotErase latches protection against destruction.
func (kf *KeyFrame) SetNotErase() {
	kf.connMu.Lock()
	kf.notErase = true
	kf.connMu.Unlock()
}

// SetErase clears the not-erase protection only when LoopClosureDone
// reports completion (nil means "never done", a permanently sticky
// protection). If toBeErase was latched while protected, this completes
// the deferred SetBad.
func (kf *KeyFrame) SetErase() {
	kf.connMu.Lock()
	done := kf.LoopClosureDone != nil && kf.LoopClosureDone()
	if done {
		kf.notErase = false
	}
	toBeErase := kf.toBeErase
	kf.connMu.Unlock()

	if toBeErase {
		kf.SetBad()
	}
}

// SetBad logically destroys the keyframe: a no-op for id 0. If not-erase
// protection is set, the destruction is deferred (toBeErase latched)
// instead. Otherwise, observations are snapshotted and released under the
// feature lock, then (outside that lock) each map-point's observation is
// removed; next, under the connection lock, is_bad is set and the neighbor
// set is snapshotted and the edge maps cleared; after that lock is released,
// every neighbor's RemoveConnection(self) is invoked, and finally the
// observation maps are cleared. The snapshot-then-release discipline exists
// so neither lock is held while calling into a map-point or a neighbor.
func (kf *KeyFrame) SetBad() {
	kf.connMu.Lock()
	if kf.id == 0 {
		kf.connMu.Unlock()
		return
	}
	if kf.notErase {
		kf.toBeErase = true
		kf.connMu.Unlock()
		if kf.Logger != nil {
			kf.Logger.Debugw("covis: keyframe destruction deferred, not-erase protection latched", "id", kf.id)
		}
		return
	}
	kf.connMu.Unlock()

	if kf.Logger != nil {
		kf.Logger.Infow("covis: keyframe marked bad", "id", kf.id)
	}

	kf.featureMu.Lock()
	mptFts := make(map[MapPoint]Feature, len(kf.mptFts))
	for mp, ft := range kf.mptFts {
		mptFts[mp] = ft
	}
	kf.featureMu.Unlock()

	for mp := range mptFts {
		mp.RemoveObservation(kf)
	}

	kf.connMu.Lock()
	kf.isBad = true
	neighbors := make([]*KeyFrame, 0, len(kf.connected))
	for n := range kf.connected {
		neighbors = append(neighbors, n)
	}
	kf.connected = nil
	kf.ordered = nil
	kf.connMu.Unlock()

	for _, n := range neighbors {
		n.RemoveConnection(kf)
	}

	kf.featureMu.Lock()
	kf.mptFts = nil
	kf.seedFts = nil
	kf.featureMu.Unlock()
}

// IsBad reports whether SetBad has completed on this keyframe.
func (kf *KeyFrame) IsBad() bool {
	kf.connMu.RLock()
	defer kf.connMu.RUnlock()
	return kf.isBad
}

// AddLoopEdge latches not-erase protection and inserts a loop edge. Loop
// edges are not part of the weight-sorted ordering and are never removed
// by RemoveConnection.
func (kf *KeyFrame) AddLoopEdge(other *KeyFrame) {
	kf.connMu.Lock()
	defer kf.connMu.Unlock()
	kf.notErase = true
	if kf.loopEdges == nil {
		kf.loopEdges = make(map[*KeyFrame]struct{})
	}
	kf.loopEdges[other] = struct{}{}
}

// LoopEdges returns the set of keyframes linked by a loop edge.
func (kf *KeyFrame) LoopEdges() []*KeyFrame {
	kf.connMu.RLock()
	defer kf.connMu.RUnlock()
	out := make([]*KeyFrame, 0, len(kf.loopEdges))
	for n := range kf.loopEdges {
		out = append(out, n)
	}
	return out
}

// Weight returns the edge weight from kf to other, or 0 if no such edge
// exists. This is a non-mutating lookup: it never inserts a zero-weight
// entry for an absent neighbor.
func (kf *KeyFrame) Weight(other *KeyFrame) int {
	kf.connMu.RLock()
	defer kf.connMu.RUnlock()
	return kf.connected[other]
}

// Parent returns the strongest connected neighbor, or nil if none is set.
func (kf *KeyFrame) Parent() *KeyFrame {
	kf.connMu.RLock()
	defer kf.connMu.RUnlock()
	return kf.parent
}

// NotErase reports whether destruction protection is currently latched.
func (kf *KeyFrame) NotErase() bool {
	kf.connMu.RLock()
	defer kf.connMu.RUnlock()
	return kf.notErase
}

// ToBeErase reports whether a deferred SetBad is pending.
func (kf *KeyFrame) ToBeErase() bool {
	kf.connMu.RLock()
	defer kf.connMu.RUnlock()
	return kf.toBeErase
}

// GetFeaturesInArea returns the indices into the secondary feature list
// whose pixel position lies within the closed disk of radius r centered at
// (x, y).
func (kf *KeyFrame) GetFeaturesInArea(x, y, r float64) []int {
	kf.featureMu.Lock()
	defer kf.featureMu.Unlock()

	var indices []int
	for i, ft := range kf.featuresInBow {
		dx := ft.Position.X - x
		dy := ft.Position.Y - y
		if dx < -r || dx > r || dy < -r || dy > r {
			continue
		}
		if dx*dx+dy*dy <= r*r {
			indices = append(indices, i)
		}
	}
	return indices
}
