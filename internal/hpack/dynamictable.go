package hpack

// DynamicTable implements the HPACK dynamic table (RFC 7541 section 2.3.2):
// a FIFO of header fields with byte-accounted eviction. New entries are
// inserted at index 1 (newest); addition indices grow with the static table
// offset when queried via the combined index space.
type DynamicTable struct {
	entries []HeaderField // entries[0] is newest
	size    int           // current total per Size()
	maxSize int           // SETTINGS_HEADER_TABLE_SIZE-governed cap
}

// NewDynamicTable creates a table capped at maxSize bytes.
func NewDynamicTable(maxSize int) *DynamicTable {
	return &DynamicTable{maxSize: maxSize}
}

// SetMaxSize applies a new maximum size, evicting entries as needed. This is
// driven either by a local SETTINGS_HEADER_TABLE_SIZE change (decoder side)
// or a dynamic table size update instruction on the wire (encoder/decoder
// both honor it).
func (t *DynamicTable) SetMaxSize(n int) {
	t.maxSize = n
	t.evict()
}

// MaxSize returns the current maximum size.
func (t *DynamicTable) MaxSize() int { return t.maxSize }

// Size returns the current total size per entry.Size() accounting.
func (t *DynamicTable) Size() int { return t.size }

// Len returns the number of entries currently held.
func (t *DynamicTable) Len() int { return len(t.entries) }

// Add inserts a new entry at the front, evicting from the back until the
// table fits within maxSize. An entry larger than maxSize by itself results
// in an empty table, per RFC 7541 section 4.4.
func (t *DynamicTable) Add(f HeaderField) {
	t.entries = append([]HeaderField{f}, t.entries...)
	t.size += f.Size()
	t.evict()
}

func (t *DynamicTable) evict() {
	for t.size > t.maxSize && len(t.entries) > 0 {
		last := t.entries[len(t.entries)-1]
		t.entries = t.entries[:len(t.entries)-1]
		t.size -= last.Size()
	}
}

// Get returns the entry at the given 1-based dynamic-table-relative index
// (1 = newest). ok is false if index is out of range.
func (t *DynamicTable) Get(i int) (HeaderField, bool) {
	if i < 1 || i > len(t.entries) {
		return HeaderField{}, false
	}
	return t.entries[i-1], true
}
