package opcode

// Stream is an append-only instruction buffer. The index returned by Emit
// stays valid for the lifetime of the stream.
type Stream struct {
	instructions Instructions
}

func NewStream() *Stream {
	return &Stream{}
}

func (s *Stream) Emit(ins Instruction) int {
	pos := len(s.instructions)
	s.instructions = append(s.instructions, ins)
	return pos
}

func (s *Stream) Len() int { return len(s.instructions) }

func (s *Stream) At(i int) Instruction { return s.instructions[i] }

func (s *Stream) Last() (Instruction, bool) {
	if len(s.instructions) == 0 {
		return Instruction{}, false
	}
	return s.instructions[len(s.instructions)-1], true
}

// Instructions returns a copy of the emitted instructions.
func (s *Stream) Instructions() Instructions {
	out := make(Instructions, len(s.instructions))
	copy(out, s.instructions)
	return out
}

// Reset empties the stream, keeping its capacity.
func (s *Stream) Reset() {
	s.instructions = s.instructions[:0]
}
