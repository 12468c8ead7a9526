package hpack

// Encoder serializes HeaderField values into an HPACK header block,
// maintaining its own dynamic table across calls (one per connection, per
// RFC 7541 section 2.2).
//
// Encoding policy: exact name+value match against the static or dynamic
// table is indexed; a name-only match is emitted as "literal without
// indexing, indexed name" and is not added to the dynamic table; no match is
// emitted as a fully literal field with incremental indexing. Huffman coding is never used on
// the wire; every string literal is emitted raw. Decoding still accepts
// Huffman-coded input from peers.
type Encoder struct {
	dynTable *DynamicTable
	buf      []byte
}

// NewEncoder creates an encoder whose dynamic table starts at maxDynTableSize.
func NewEncoder(maxDynTableSize int) *Encoder {
	return &Encoder{dynTable: NewDynamicTable(maxDynTableSize)}
}

// SetMaxDynamicTableSize applies a new cap and queues a dynamic table size
// update instruction to be emitted at the start of the next Encode call.
func (e *Encoder) SetMaxDynamicTableSize(n int) {
	e.dynTable.SetMaxSize(n)
	e.buf = append(e.buf, 0x20)
	e.buf = appendVarInt(e.buf, 5, uint64(n))
}

// Encode serializes the given fields into a new header block, appending to
// the encoder's internal dynamic table as it goes. The returned slice is a
// copy safe for the caller to retain.
func (e *Encoder) Encode(fields []HeaderField) []byte {
	for _, f := range fields {
		e.writeField(f)
	}
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	e.buf = e.buf[:0]
	return out
}

func (e *Encoder) writeField(f HeaderField) {
	if idx, ok := staticFieldIndex[f]; ok {
		e.appendIndexed(idx)
		return
	}
	if idx, ok := e.dynExactIndex(f); ok {
		e.appendIndexed(idx)
		return
	}

	if nameIdx, ok := staticNameIndex[f.Name]; ok {
		e.appendLiteralIndexedName(nameIdx, f.Value)
		return
	}
	if nameIdx, ok := e.dynNameIndex(f.Name); ok {
		e.appendLiteralIndexedName(nameIdx, f.Value)
		return
	}

	e.appendLiteralNewName(f)
	e.dynTable.Add(f)
}

// dynExactIndex searches the dynamic table for an exact name+value match,
// returning the combined static+dynamic index space position.
func (e *Encoder) dynExactIndex(f HeaderField) (int, bool) {
	for i := 1; i <= e.dynTable.Len(); i++ {
		entry, _ := e.dynTable.Get(i)
		if entry == f {
			return staticTableSize + i, true
		}
	}
	return 0, false
}

func (e *Encoder) dynNameIndex(name string) (int, bool) {
	for i := 1; i <= e.dynTable.Len(); i++ {
		entry, _ := e.dynTable.Get(i)
		if entry.Name == name {
			return staticTableSize + i, true
		}
	}
	return 0, false
}

// appendIndexed emits the "Indexed Header Field" representation (6.1): the
// top bit set, index in the remaining 7 bits/continuation.
func (e *Encoder) appendIndexed(index int) {
	e.buf = append(e.buf, 0x80)
	e.buf = appendVarInt(e.buf, 7, uint64(index))
}

// appendLiteralIndexedName emits "Literal Header Field without Indexing —
// Indexed Name" (6.2.2): top four bits 0000, name by index in a 4-bit
// prefix, value as a raw string literal.
func (e *Encoder) appendLiteralIndexedName(nameIndex int, value string) {
	e.buf = append(e.buf, 0x00)
	e.buf = appendVarInt(e.buf, 4, uint64(nameIndex))
	e.buf = appendString(e.buf, value, false)
}

// appendLiteralNewName emits "Literal Header Field with Incremental
// Indexing — New Name" (6.2.1): top two bits 01, index field 0, name and
// value both as raw string literals.
func (e *Encoder) appendLiteralNewName(f HeaderField) {
	e.buf = append(e.buf, 0x40)
	e.buf = appendString(e.buf, f.Name, false)
	e.buf = appendString(e.buf, f.Value, false)
}
