package reconcile

// Ratio is the Ratcliff/Obershelp similarity 2*M/T over runes, where M counts the
// characters in matching blocks and T is the combined length. Two empty inputs score 1.
//
// Sequences of 200+ runes drop "popular" runes from the junk-free set (those occurring
// more than 1% of the time in b), the same autojunk rule difflib applies.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	m := newMatcher(ra, rb)
	return 2 * float64(m.matchingCount()) / float64(total)
}

type seqMatcher struct {
	a, b  []rune
	b2j   map[rune][]int
	large map[rune]bool
}

func newMatcher(a, b []rune) *seqMatcher {
	m := &seqMatcher{a: a, b: b, b2j: map[rune][]int{}, large: map[rune]bool{}}
	for i, r := range b {
		m.b2j[r] = append(m.b2j[r], i)
	}
	n := len(b)
	if n >= 200 {
		popular := n/100 + 1
		for r, idx := range m.b2j {
			if len(idx) > popular {
				m.large[r] = true
				delete(m.b2j, r)
			}
		}
	}
	return m
}

// longest finds the longest matching block in a[alo:ahi] and b[blo:bhi],
// preferring the earliest start in a and then in b.
func (m *seqMatcher) longest(alo, ahi, blo, bhi int) (int, int, int) {
	besti, bestj, bestsize := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}

	// Extend across popular runes on both ends.
	for besti > alo && bestj > blo && m.large[m.b[bestj-1]] && m.a[besti-1] == m.b[bestj-1] {
		besti, bestj, bestsize = besti-1, bestj-1, bestsize+1
	}
	for besti+bestsize < ahi && bestj+bestsize < bhi && m.large[m.b[bestj+bestsize]] && m.a[besti+bestsize] == m.b[bestj+bestsize] {
		bestsize++
	}
	return besti, bestj, bestsize
}

func (m *seqMatcher) matchingCount() int {
	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(m.a), 0, len(m.b)}}
	total := 0
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		i, j, k := m.longest(s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		total += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return total
}
