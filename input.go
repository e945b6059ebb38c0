package telegraph

import "slices"

// InputValues is the application-defined encoding of one player's input for
// a single frame, typically the list of held key codes.
type InputValues []int

// GameInput is a player's input for a given frame.
type GameInput struct {
	Frame  int
	Inputs InputValues
}

// Equal reports whether both inputs are for the same frame and carry the
// same values.
func (g GameInput) Equal(o GameInput) bool {
	return g.Frame == o.Frame && slices.Equal(g.Inputs, o.Inputs)
}

func (g GameInput) clone() GameInput {
	return GameInput{Frame: g.Frame, Inputs: slices.Clone(g.Inputs)}
}
