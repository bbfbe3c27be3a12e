package dedup

// Ratio scores how alike two canonical strings are, in [0,1]. It is the
// classic longest-matching-block measure: 2*M/T where M is the number of
// matched runes across recursively found longest common blocks and T the
// total length of both inputs.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	m := matchCount(ra, rb, 0, len(ra), 0, len(rb))
	return 2.0 * float64(m) / float64(len(ra)+len(rb))
}

func matchCount(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, k := longestMatch(a, b, alo, ahi, blo, bhi)
	if k == 0 {
		return 0
	}
	return k +
		matchCount(a, b, alo, i, blo, j) +
		matchCount(a, b, i+k, ahi, j+k, bhi)
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] within the given
// windows, preferring the earliest block on ties.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestsize int) {
	b2j := make(map[rune][]int)
	for j := blo; j < bhi; j++ {
		b2j[b[j]] = append(b2j[b[j]], j)
	}

	besti, bestj = alo, blo
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		newj2len := make(map[int]int, len(b2j[a[i]]))
		for _, j := range b2j[a[i]] {
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}
