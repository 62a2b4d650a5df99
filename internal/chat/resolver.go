package chat

// DirectConversationID derives the stable id of a 1:1 thread from the
// two participant ids: the lexicographically greater id comes first, so
// both sides compute the same id regardless of argument order. Direct
// conversations are never explicitly created; this id is all there is.
//
// The comparison is plain string order, not numeric, so "9" sorts after
// "10". That is fine as long as every caller derives the id the same
// way, which this function guarantees.
func DirectConversationID(a, b string) string {
	if a > b {
		return a + b
	}
	return b + a
}
