package blocks

// IndexOf returns the position of the block with the given id, or -1.
func IndexOf(list []Block, id string) int {
	for i, b := range list {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// Find returns the block with the given id.
func Find(list []Block, id string) (Block, bool) {
	if i := IndexOf(list, id); i >= 0 {
		return list[i], true
	}
	return Block{}, false
}

// Insert places b at index, clamped to [0, len(list)].
func Insert(list []Block, b Block, index int) []Block {
	index = clamp(index, 0, len(list))
	out := make([]Block, 0, len(list)+1)
	out = append(out, list[:index]...)
	out = append(out, b)
	return append(out, list[index:]...)
}

// Update merges p into the block with the given id. It reports false and
// returns list unchanged when the id is unknown.
func Update(list []Block, id string, p Patch) ([]Block, bool) {
	i := IndexOf(list, id)
	if i < 0 {
		return list, false
	}
	out := append([]Block(nil), list...)
	out[i] = p.Apply(out[i])
	return out, true
}

// Delete removes the block with the given id.
func Delete(list []Block, id string) ([]Block, bool) {
	i := IndexOf(list, id)
	if i < 0 {
		return list, false
	}
	out := make([]Block, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}

// Duplicate inserts a copy of the block with the given id right after it.
// The copy and any blocks nested in its columns get ids from newID. The
// index of the copy is returned.
func Duplicate(list []Block, id string, newID func() string) ([]Block, int, bool) {
	i := IndexOf(list, id)
	if i < 0 {
		return list, -1, false
	}
	return Insert(list, CloneWithNewIDs(list[i], newID), i+1), i + 1, true
}

// Move removes the block at from and re-inserts it at to. A from index out
// of range is a no-op; to is clamped to the list bounds.
func Move(list []Block, from, to int) ([]Block, bool) {
	if from < 0 || from >= len(list) {
		return list, false
	}
	to = clamp(to, 0, len(list)-1)
	if from == to {
		return list, false
	}
	moved := list[from]
	rest := make([]Block, 0, len(list))
	rest = append(rest, list[:from]...)
	rest = append(rest, list[from+1:]...)
	return Insert(rest, moved, to), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
