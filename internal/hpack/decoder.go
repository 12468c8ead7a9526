package hpack

// Decoder parses an HPACK header block into HeaderField values, maintaining
// its own dynamic table across calls (mirrors the peer's encoder state).
type Decoder struct {
	dynTable      *DynamicTable
	maxTableSize  int // SETTINGS-advertised ceiling; size updates above this are rejected
	emit          func(HeaderField)
	seenField     bool // true once any non-size-update representation has been decoded
}

// NewDecoder creates a decoder whose dynamic table is capped at maxTableSize
// (the locally advertised SETTINGS_HEADER_TABLE_SIZE).
func NewDecoder(maxTableSize int) *Decoder {
	return &Decoder{
		dynTable:     NewDynamicTable(maxTableSize),
		maxTableSize: maxTableSize,
	}
}

// SetEmitFunc installs the callback invoked for each decoded field, in
// order, during the next Decode call.
func (d *Decoder) SetEmitFunc(f func(HeaderField)) { d.emit = f }

// SetMaxTableSize updates the ceiling a peer's dynamic table size update
// instruction may not exceed, e.g. after a local SETTINGS change.
func (d *Decoder) SetMaxTableSize(n int) {
	d.maxTableSize = n
	if d.dynTable.MaxSize() > n {
		d.dynTable.SetMaxSize(n)
	}
}

// Decode parses a complete header block fragment (already reassembled
// across HEADERS+CONTINUATION), invoking the emit callback for each field in
// order. Returns an error for any malformed representation; the caller must
// treat this as a connection-level COMPRESSION_ERROR since dynamic table
// state is now unreliable.
func (d *Decoder) Decode(block []byte) error {
	d.seenField = false
	i := 0
	for i < len(block) {
		b := block[i]
		switch {
		case b&0x80 != 0: // Indexed Header Field (6.1)
			idx, n, err := readVarInt(7, b&0x7f, block[i+1:])
			if err != nil {
				return err
			}
			i += 1 + n
			f, err := d.lookup(int(idx))
			if err != nil {
				return err
			}
			d.seenField = true
			d.emitField(f)

		case b&0xc0 == 0x40: // Literal with Incremental Indexing (6.2.1)
			f, n, err := d.readLiteral(block[i:], 6)
			if err != nil {
				return err
			}
			i += n
			d.dynTable.Add(f)
			d.seenField = true
			d.emitField(f)

		case b&0xf0 == 0x00: // Literal without Indexing (6.2.2)
			f, n, err := d.readLiteral(block[i:], 4)
			if err != nil {
				return err
			}
			i += n
			d.seenField = true
			d.emitField(f)

		case b&0xf0 == 0x10: // Literal Never Indexed (6.2.3)
			f, n, err := d.readLiteral(block[i:], 4)
			if err != nil {
				return err
			}
			i += n
			d.seenField = true
			d.emitField(f)

		case b&0xe0 == 0x20: // Dynamic Table Size Update (6.3)
			if d.seenField {
				return &DecodingError{Reason: "dynamic table size update after a header field"}
			}
			n64, n, err := readVarInt(5, b&0x1f, block[i+1:])
			if err != nil {
				return err
			}
			i += 1 + n
			if int(n64) > d.maxTableSize {
				return &DecodingError{Reason: "dynamic table size update exceeds advertised maximum"}
			}
			d.dynTable.SetMaxSize(int(n64))

		default:
			return &DecodingError{Reason: "unrecognized header field representation"}
		}
	}
	return nil
}

func (d *Decoder) emitField(f HeaderField) {
	if d.emit != nil {
		d.emit(f)
	}
}

// readLiteral decodes a literal representation (with or without indexing,
// indexed or new name) starting at buf[0], whose leading byte carries the
// representation bits and a prefixBits-wide name-index field.
func (d *Decoder) readLiteral(buf []byte, prefixBits int) (HeaderField, int, error) {
	mask := byte(1<<uint(prefixBits)) - 1
	nameIdx, n, err := readVarInt(prefixBits, buf[0]&mask, buf[1:])
	if err != nil {
		return HeaderField{}, 0, err
	}
	off := 1 + n

	var name string
	if nameIdx == 0 {
		nm, consumed, err := readString(buf[off:])
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = nm
		off += consumed
	} else {
		f, err := d.lookup(int(nameIdx))
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = f.Name
	}

	value, consumed, err := readString(buf[off:])
	if err != nil {
		return HeaderField{}, 0, err
	}
	off += consumed

	return HeaderField{Name: name, Value: value}, off, nil
}

// lookup resolves a 1-based index into the combined static+dynamic table
// space (RFC 7541 section 2.3.3).
func (d *Decoder) lookup(index int) (HeaderField, error) {
	if index >= 1 && index <= staticTableSize {
		return staticTable[index], nil
	}
	if f, ok := d.dynTable.Get(index - staticTableSize); ok {
		return f, nil
	}
	return HeaderField{}, &DecodingError{Reason: "header index out of range"}
}
