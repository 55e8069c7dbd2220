package canvasdoc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"artboard/internal/models"
)

// ErrDecode reports malformed or foreign binary input. The caller must not
// apply a frame that failed to decode; decoding never mutates a document.
var ErrDecode = errors.New("canvasdoc: malformed update")

const (
	frameMagic   = 0xA7
	frameVersion = 1

	frameKindDelta = 1
	frameKindState = 2
)

type opKind byte

const (
	opInsert opKind = iota + 1
	opDelete
	opSetMeta
)

type op struct {
	kind   opKind
	id     ID
	origin ID             // insert: left neighbor at insertion time
	elem   models.Element // insert payload
	target ID             // delete target
	key    string         // meta key
	value  any            // meta value
}

// writer

type frameWriter struct {
	buf []byte
}

func (w *frameWriter) uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *frameWriter) id(id ID) {
	w.uvarint(uint64(id.Client))
	w.uvarint(uint64(id.Clock))
}

func (w *frameWriter) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *frameWriter) str(s string) {
	w.bytes([]byte(s))
}

func (w *frameWriter) json(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.bytes(b)
	return nil
}

// reader

type frameReader struct {
	buf []byte
	pos int
}

func (r *frameReader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrDecode
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *frameReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, ErrDecode
	}
	r.pos += n
	return v, nil
}

func (r *frameReader) uint32() (uint32, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, ErrDecode
	}
	return uint32(v), nil
}

func (r *frameReader) id() (ID, error) {
	client, err := r.uint32()
	if err != nil {
		return ID{}, err
	}
	clock, err := r.uint32()
	if err != nil {
		return ID{}, err
	}
	return ID{Client: client, Clock: clock}, nil
}

func (r *frameReader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.buf)-r.pos) {
		return nil, ErrDecode
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *frameReader) str() (string, error) {
	b, err := r.bytes()
	return string(b), err
}

func (r *frameReader) json(into any) error {
	b, err := r.bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, into); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func (r *frameReader) done() bool {
	return r.pos >= len(r.buf)
}

func header(r *frameReader) (byte, error) {
	magic, err := r.byte()
	if err != nil {
		return 0, err
	}
	version, err := r.byte()
	if err != nil {
		return 0, err
	}
	if magic != frameMagic || version != frameVersion {
		return 0, fmt.Errorf("%w: bad header", ErrDecode)
	}
	return r.byte()
}

// IsStateFrame reports whether data carries a full document state rather
// than a delta. Only the header is inspected; full validation happens on
// decode.
func IsStateFrame(data []byte) bool {
	return len(data) >= 3 && data[0] == frameMagic && data[1] == frameVersion && data[2] == frameKindState
}

// encodeDelta serializes a batch of ops into one update frame.
func encodeDelta(ops []op) []byte {
	w := &frameWriter{buf: make([]byte, 0, 64*len(ops))}
	w.buf = append(w.buf, frameMagic, frameVersion, frameKindDelta)
	w.uvarint(uint64(len(ops)))
	for _, o := range ops {
		w.buf = append(w.buf, byte(o.kind))
		w.id(o.id)
		switch o.kind {
		case opInsert:
			w.id(o.origin)
			w.json(o.elem)
		case opDelete:
			w.id(o.target)
		case opSetMeta:
			w.str(o.key)
			w.json(o.value)
		}
	}
	return w.buf
}

func decodeDelta(data []byte) ([]op, error) {
	r := &frameReader{buf: data}
	kind, err := header(r)
	if err != nil {
		return nil, err
	}
	if kind != frameKindDelta {
		return nil, fmt.Errorf("%w: not a delta frame", ErrDecode)
	}
	count, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if count > uint64(len(data)) {
		return nil, ErrDecode
	}
	ops := make([]op, 0, count)
	for i := uint64(0); i < count; i++ {
		kb, err := r.byte()
		if err != nil {
			return nil, err
		}
		o := op{kind: opKind(kb)}
		if o.id, err = r.id(); err != nil {
			return nil, err
		}
		switch o.kind {
		case opInsert:
			if o.origin, err = r.id(); err != nil {
				return nil, err
			}
			if err = r.json(&o.elem); err != nil {
				return nil, err
			}
		case opDelete:
			if o.target, err = r.id(); err != nil {
				return nil, err
			}
		case opSetMeta:
			if o.key, err = r.str(); err != nil {
				return nil, err
			}
			if err = r.json(&o.value); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unknown op kind %d", ErrDecode, kb)
		}
		ops = append(ops, o)
	}
	if !r.done() {
		return nil, fmt.Errorf("%w: trailing bytes", ErrDecode)
	}
	return ops, nil
}

// EncodeState serializes the full replicated state, tombstones included,
// for snapshotting. Item origins are rewritten to the serialized
// predecessor so decoding reconstructs the exact sequence order while
// preserving every item's id for later concurrent edits.
func (d *Doc) EncodeState() []byte {
	w := &frameWriter{buf: make([]byte, 0, 256)}
	w.buf = append(w.buf, frameMagic, frameVersion, frameKindState)
	w.uvarint(uint64(d.clock))

	n := 0
	for it := d.head.next; it != nil; it = it.next {
		n++
	}
	w.uvarint(uint64(n))
	for it := d.head.next; it != nil; it = it.next {
		w.id(it.id)
		var flags byte
		if it.deleted {
			flags |= 1
		}
		w.buf = append(w.buf, flags)
		w.json(it.elem)
	}

	w.uvarint(uint64(len(d.meta)))
	for key, e := range d.meta {
		w.str(key)
		w.id(e.stamp)
		w.json(e.value)
	}
	return w.buf
}

// NewFromState hydrates a replica from a full-state frame produced by
// EncodeState. The new replica gets a fresh client id.
func NewFromState(data []byte) (*Doc, error) {
	d := New()
	if err := d.applyState(data); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Doc) applyState(data []byte) error {
	r := &frameReader{buf: data}
	kind, err := header(r)
	if err != nil {
		return err
	}
	if kind != frameKindState {
		return fmt.Errorf("%w: not a state frame", ErrDecode)
	}
	clock, err := r.uint32()
	if err != nil {
		return err
	}

	count, err := r.uvarint()
	if err != nil {
		return err
	}
	if count > uint64(len(data)) {
		return ErrDecode
	}
	prev := d.head
	var prevID ID
	for i := uint64(0); i < count; i++ {
		id, err := r.id()
		if err != nil {
			return err
		}
		flags, err := r.byte()
		if err != nil {
			return err
		}
		var el models.Element
		if err := r.json(&el); err != nil {
			return err
		}
		if _, dup := d.byID[id]; dup || id.isZero() {
			return fmt.Errorf("%w: duplicate item id", ErrDecode)
		}
		it := &item{id: id, origin: prevID, elem: el, deleted: flags&1 != 0, prev: prev}
		prev.next = it
		d.byID[id] = it
		prev = it
		prevID = id
	}

	metaCount, err := r.uvarint()
	if err != nil {
		return err
	}
	if metaCount > uint64(len(data)) {
		return ErrDecode
	}
	for i := uint64(0); i < metaCount; i++ {
		key, err := r.str()
		if err != nil {
			return err
		}
		stamp, err := r.id()
		if err != nil {
			return err
		}
		var value any
		if err := r.json(&value); err != nil {
			return err
		}
		d.meta[key] = metaEntry{value: value, stamp: stamp}
	}
	if !r.done() {
		return fmt.Errorf("%w: trailing bytes", ErrDecode)
	}
	d.observe(clock)
	return nil
}
