package features

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

// PeerZSuffix is appended to a column's name for its peer z-score.
const PeerZSuffix = "__PEER_Z"

// GroupStats summarizes one column within one peer group.
type GroupStats struct {
	N    int
	Mean float64
	Std  float64
}

// Defined reports whether a z-score can be computed against this group.
func (g GroupStats) Defined() bool { return g.N >= 2 && g.Std > 0 }

// PeerGroups assigns each row a group index by its key values. Rows with any
// missing key get -1.
func PeerGroups(t *panel.Table, keys []string) ([]int, int, error) {
	cols := make([]*panel.Column, len(keys))
	for i, k := range keys {
		if cols[i] = t.Col(k); cols[i] == nil {
			return nil, 0, fmt.Errorf("peer key %q: %w", k, panel.ErrMissingColumn)
		}
	}
	ids := make(map[string]int)
	groups := make([]int, t.Rows())
	var b strings.Builder
	for i := range groups {
		b.Reset()
		groups[i] = -1
		complete := true
		for n, c := range cols {
			if !c.IsValid(i) {
				complete = false
				break
			}
			if n > 0 {
				b.WriteByte(0x1f)
			}
			b.WriteString(c.TextAt(i))
		}
		if !complete {
			continue
		}
		id, ok := ids[b.String()]
		if !ok {
			id = len(ids)
			ids[b.String()] = id
		}
		groups[i] = id
	}
	return groups, len(ids), nil
}

// GroupAggregate computes per-group statistics of c over non-missing values.
// Std is the sample standard deviation.
func GroupAggregate(c *panel.Column, groups []int, n int) []GroupStats {
	vals := make([][]float64, n)
	for i, g := range groups {
		if g < 0 {
			continue
		}
		if v, ok := c.FloatAt(i); ok {
			vals[g] = append(vals[g], v)
		}
	}
	out := make([]GroupStats, n)
	for g, vs := range vals {
		out[g].N = len(vs)
		switch len(vs) {
		case 0:
		case 1:
			out[g].Mean = vs[0]
		default:
			out[g].Mean, out[g].Std = stat.MeanStdDev(vs, nil)
		}
	}
	return out
}

// AddPeerZScores appends <col>__PEER_Z for every numeric column present when
// called, standardizing each value against its (keys...) peer group.
func AddPeerZScores(t *panel.Table, keys []string) ([]string, error) {
	groups, n, err := PeerGroups(t, keys)
	if err != nil {
		return nil, err
	}
	bases := t.NumericNames()
	for _, name := range bases {
		c := t.Col(name)
		agg := GroupAggregate(c, groups, n)
		z := panel.NewFloatColumn(name+PeerZSuffix, t.Rows())
		for i, g := range groups {
			if g < 0 || !agg[g].Defined() {
				continue
			}
			if v, ok := c.FloatAt(i); ok {
				z.SetFloat(i, (v-agg[g].Mean)/agg[g].Std)
			}
		}
		if err := t.Add(z); err != nil {
			return nil, err
		}
	}
	return bases, nil
}
