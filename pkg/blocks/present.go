package blocks

// Visible filters out blocks hidden under collapsed toggles. A closed toggle
// hides every following block with a strictly greater level until a block at
// or below the toggle's level appears.
func Visible(list []Block) []Block {
	out := make([]Block, 0, len(list))
	hiddenBelow := -1
	for _, b := range list {
		level := Level(b)
		if hiddenBelow >= 0 {
			if level > hiddenBelow {
				continue
			}
			hiddenBelow = -1
		}
		out = append(out, b)
		if b.Type == TypeToggle && !IsOpen(b) {
			hiddenBelow = level
		}
	}
	return out
}

// Numbering returns the ordered-list number of every block; entries for
// blocks that are not of type number are 0. Counters are kept per level: a
// number block continues the run at its level and clears deeper runs, any
// other block ends the run at its level and every deeper one.
func Numbering(list []Block) []int {
	out := make([]int, len(list))
	counters := make(map[int]int)
	for i, b := range list {
		level := Level(b)
		for l := range counters {
			if l > level {
				delete(counters, l)
			}
		}
		if b.Type != TypeNumber {
			delete(counters, level)
			continue
		}
		counters[level]++
		out[i] = counters[level]
	}
	return out
}

// SameGroup reports whether a block of type cur directly after one of type
// prev renders as part of the same list group.
func SameGroup(prev, cur Type) bool {
	return prev == cur && cur.ListLike()
}

// Groups reports, for every block, whether it continues the visual group of
// the block before it. Blocks at different levels never share a group.
func Groups(list []Block) []bool {
	out := make([]bool, len(list))
	for i := 1; i < len(list); i++ {
		out[i] = SameGroup(list[i-1].Type, list[i].Type) && Level(list[i-1]) == Level(list[i])
	}
	return out
}
