package engine

// AllocateSequence assigns the display identity for a new scenario given the
// owner's current scenario count. Pure; the count query and the insert are not
// atomic, so strict per-owner uniqueness is the caller's concern.
func AllocateSequence(existing int) (int, string) {
	number := existing + 1
	return number, SequenceLetter(number)
}

// SequenceLetter maps 1..26 to A..Z and larger numbers to two-letter codes
// (27 -> AA, 28 -> AB, ...). The scheme is only exercised up to ZZ; behavior
// past 702 is unspecified.
func SequenceLetter(number int) string {
	if number <= 26 {
		return string(rune('A' + number - 1))
	}
	first := rune('A' + (number-1)/26 - 1)
	second := rune('A' + (number-1)%26)
	return string(first) + string(second)
}
