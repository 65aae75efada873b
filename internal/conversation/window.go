package conversation

import "carecall-backend/internal/store"

// Window returns the last n turns of a chronologically ordered slice,
// preserving order. It returns the input unchanged when it already fits.
func Window(turns []store.Turn, n int) []store.Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
