package mapreduce

import (
	"fmt"
	"sort"
)

type Count struct {
	Key   string
	Value int
}

func (c Count) String() string { return fmt.Sprintf("%s:%d", c.Key, c.Value) }

// Top returns the n most frequent keys, highest count first. Ties are
// broken by key so the order is stable across runs. n <= 0 returns all.
func Top(counts map[string]int, n int) []Count {
	ss := make([]Count, 0, len(counts))
	for k, v := range counts {
		ss = append(ss, Count{k, v})
	}

	sort.Slice(ss, func(i, j int) bool {
		if ss[i].Value != ss[j].Value {
			return ss[i].Value > ss[j].Value
		}
		return ss[i].Key < ss[j].Key
	})

	if n > 0 && len(ss) > n {
		ss = ss[:n]
	}
	return ss
}
