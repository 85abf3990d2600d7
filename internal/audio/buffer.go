package audio

// Concat returns a new buffer holding a's bytes followed by b's bytes.
// A nil input is treated as an empty buffer. The result never aliases a or b.
func Concat(a, b []byte) []byte {
	out := make([]byte, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}

// Accumulator collects synthesized audio segments in arrival order.
// It is owned by a single generation request and is not safe for
// concurrent use.
type Accumulator struct {
	buffer   []byte
	segments int
}

// NewAccumulator creates an empty accumulator with an optional capacity hint
func NewAccumulator(sizeHint int) *Accumulator {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Accumulator{
		buffer: make([]byte, 0, sizeHint),
	}
}

// Append folds one segment onto the end of the buffer with Concat
// semantics: afterwards Bytes equals Concat(previous, segment) and never
// aliases segment. Empty segments are counted but add no bytes.
func (a *Accumulator) Append(segment []byte) {
	a.buffer = append(a.buffer, segment...)
	a.segments++
}

// Bytes returns the accumulated audio. The slice is owned by the caller
// once the accumulator is no longer appended to.
func (a *Accumulator) Bytes() []byte {
	return a.buffer
}

// Len returns the number of accumulated bytes
func (a *Accumulator) Len() int {
	return len(a.buffer)
}

// Segments returns the number of folded segments
func (a *Accumulator) Segments() int {
	return a.segments
}
