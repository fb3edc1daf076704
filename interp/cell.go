package interp

// CellKind is the capability a tape cell type must provide: wraparound
// arithmetic (from Go's defined unsigned overflow) and conversion to and
// from a byte. uint8 is the production cell type; the wider kinds exist
// for extensibility.
type CellKind interface {
	~uint8 | ~uint16 | ~uint32
}
