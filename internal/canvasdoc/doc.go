package canvasdoc

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"artboard/internal/models"
)

// ID identifies one operation (and the item it created) by originating
// client and logical clock. Pairs are unique document-wide because each
// client ticks its own clock per local op.
type ID struct {
	Client uint32
	Clock  uint32
}

func (id ID) isZero() bool {
	return id.Client == 0 && id.Clock == 0
}

// less orders ids by (clock, client). This is the tie-break used to place
// concurrent insertions at the same position: the scan during integration
// compares ids, so every replica settles on the same order no matter which
// delta arrives first.
func less(a, b ID) bool {
	if a.Clock != b.Clock {
		return a.Clock < b.Clock
	}
	return a.Client < b.Client
}

// item is one entry of the replicated element sequence. Deleted items stay
// in the list as tombstones so later concurrent ops can still anchor on
// them.
type item struct {
	id      ID
	origin  ID // left neighbor at insertion time; zero means document head
	elem    models.Element
	deleted bool
	prev    *item
	next    *item
}

type metaEntry struct {
	value any
	stamp ID
}

// Doc is a replicated canvas document: an ordered element sequence plus a
// last-write-wins metadata map, both keyed by logical clocks. Concurrent
// edits from different replicas converge regardless of arrival order.
//
// Doc is not synchronized; callers serialize access (the session registry
// is single-writer per document, the client adapter holds its own lock).
type Doc struct {
	client uint32
	clock  uint32

	head *item // sentinel
	byID map[ID]*item
	meta map[string]metaEntry

	pending   []op
	listeners []func()
}

// New creates an empty document replica with a random client id.
func New() *Doc {
	var b [4]byte
	rand.Read(b[:])
	client := binary.BigEndian.Uint32(b[:])
	if client == 0 {
		client = 1
	}
	return NewWithClient(client)
}

// NewWithClient creates an empty replica with an explicit client id.
// Client ids must be nonzero and unique per live replica.
func NewWithClient(client uint32) *Doc {
	return &Doc{
		client: client,
		head:   &item{},
		byID:   make(map[ID]*item),
		meta:   make(map[string]metaEntry),
	}
}

// ClientID returns this replica's client id.
func (d *Doc) ClientID() uint32 {
	return d.client
}

// OnChange registers a listener invoked after every applied change, local
// or remote.
func (d *Doc) OnChange(fn func()) {
	d.listeners = append(d.listeners, fn)
}

func (d *Doc) notify() {
	for _, fn := range d.listeners {
		fn()
	}
}

func (d *Doc) tick() ID {
	d.clock++
	return ID{Client: d.client, Clock: d.clock}
}

func (d *Doc) observe(clock uint32) {
	if clock > d.clock {
		d.clock = clock
	}
}

// visibleAt returns the item at visible index i, or nil.
func (d *Doc) visibleAt(i int) *item {
	n := 0
	for it := d.head.next; it != nil; it = it.next {
		if it.deleted {
			continue
		}
		if n == i {
			return it
		}
		n++
	}
	return nil
}

// Len returns the number of visible elements.
func (d *Doc) Len() int {
	n := 0
	for it := d.head.next; it != nil; it = it.next {
		if !it.deleted {
			n++
		}
	}
	return n
}

// Get returns the visible element at index i.
func (d *Doc) Get(i int) (models.Element, bool) {
	if it := d.visibleAt(i); it != nil {
		return it.elem, true
	}
	return models.Element{}, false
}

// Elements returns the visible elements in sequence order. Position in the
// slice is the element's paint order.
func (d *Doc) Elements() []models.Element {
	out := make([]models.Element, 0, len(d.byID))
	for it := d.head.next; it != nil; it = it.next {
		if !it.deleted {
			out = append(out, it.elem)
		}
	}
	return out
}

// InsertAt inserts el at visible index i (clamped to the sequence bounds)
// and queues the op for the next delta.
func (d *Doc) InsertAt(i int, el models.Element) {
	origin := ID{}
	if i > 0 {
		if left := d.visibleAt(i - 1); left != nil {
			origin = left.id
		} else if last := d.lastItem(); last != nil {
			origin = last.id
		}
	}
	o := op{kind: opInsert, id: d.tick(), origin: origin, elem: el}
	d.integrateInsert(o)
	d.pending = append(d.pending, o)
	d.notify()
}

// RemoveAt removes count visible elements starting at index i and queues
// the ops for the next delta.
func (d *Doc) RemoveAt(i, count int) {
	targets := make([]ID, 0, count)
	for n := 0; n < count; n++ {
		it := d.visibleAt(i + n)
		if it == nil {
			break
		}
		targets = append(targets, it.id)
	}
	for _, target := range targets {
		o := op{kind: opDelete, id: d.tick(), target: target}
		d.integrateDelete(o)
		d.pending = append(d.pending, o)
	}
	if len(targets) > 0 {
		d.notify()
	}
}

// SetMeta sets a metadata key. Values must be JSON-encodable.
func (d *Doc) SetMeta(key string, value any) {
	o := op{kind: opSetMeta, id: d.tick(), key: key, value: value}
	d.integrateMeta(o)
	d.pending = append(d.pending, o)
	d.notify()
}

// Meta returns the value for a metadata key.
func (d *Doc) Meta(key string) (any, bool) {
	e, ok := d.meta[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// MetaMap returns a copy of the metadata map.
func (d *Doc) MetaMap() map[string]any {
	out := make(map[string]any, len(d.meta))
	for k, e := range d.meta {
		out[k] = e.value
	}
	return out
}

func (d *Doc) lastItem() *item {
	it := d.head
	for it.next != nil {
		it = it.next
	}
	if it == d.head {
		return nil
	}
	return it
}

// integrateInsert places the new item after its origin, skipping over any
// already-integrated successors with a greater id. Replayed ops are no-ops.
func (d *Doc) integrateInsert(o op) {
	if _, ok := d.byID[o.id]; ok {
		return
	}
	left := d.head
	if !o.origin.isZero() {
		left = d.byID[o.origin]
	}
	cur := left.next
	for cur != nil && less(o.id, cur.id) {
		left = cur
		cur = cur.next
	}
	it := &item{id: o.id, origin: o.origin, elem: o.elem, prev: left, next: cur}
	left.next = it
	if cur != nil {
		cur.prev = it
	}
	d.byID[o.id] = it
	d.observe(o.id.Clock)
}

func (d *Doc) integrateDelete(o op) {
	if it, ok := d.byID[o.target]; ok {
		it.deleted = true
	}
	d.observe(o.id.Clock)
}

func (d *Doc) integrateMeta(o op) {
	if e, ok := d.meta[o.key]; ok {
		// Existing entry wins unless the incoming stamp is strictly newer.
		// An equal stamp is the same op replayed.
		if !less(e.stamp, o.id) {
			return
		}
	}
	d.meta[o.key] = metaEntry{value: o.value, stamp: o.id}
	d.observe(o.id.Clock)
}

// PendingDelta drains the queued local ops into one binary update frame.
// Returns nil when nothing is pending.
func (d *Doc) PendingDelta() []byte {
	if len(d.pending) == 0 {
		return nil
	}
	data := encodeDelta(d.pending)
	d.pending = d.pending[:0]
	return data
}

// ApplyUpdate integrates a remote delta. The frame is fully decoded and
// validated before any op is applied, so malformed or foreign input never
// corrupts existing state.
func (d *Doc) ApplyUpdate(data []byte) error {
	ops, err := decodeDelta(data)
	if err != nil {
		return err
	}
	if err := d.validate(ops); err != nil {
		return err
	}
	for _, o := range ops {
		switch o.kind {
		case opInsert:
			d.integrateInsert(o)
		case opDelete:
			d.integrateDelete(o)
		case opSetMeta:
			d.integrateMeta(o)
		}
	}
	d.notify()
	return nil
}

// validate checks that every op in the delta resolves against this replica:
// insert origins and delete targets must name items that exist here or
// earlier in the same delta.
func (d *Doc) validate(ops []op) error {
	known := func(id ID, staged map[ID]bool) bool {
		if _, ok := d.byID[id]; ok {
			return true
		}
		return staged[id]
	}
	staged := make(map[ID]bool)
	for _, o := range ops {
		switch o.kind {
		case opInsert:
			if o.id.isZero() {
				return fmt.Errorf("%w: insert without id", ErrDecode)
			}
			if !o.origin.isZero() && !known(o.origin, staged) {
				return fmt.Errorf("%w: unknown origin %v", ErrDecode, o.origin)
			}
			staged[o.id] = true
		case opDelete:
			if !known(o.target, staged) {
				return fmt.Errorf("%w: unknown delete target %v", ErrDecode, o.target)
			}
		case opSetMeta:
			if o.key == "" {
				return fmt.Errorf("%w: empty metadata key", ErrDecode)
			}
		}
	}
	return nil
}
