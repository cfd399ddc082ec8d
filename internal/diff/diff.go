// Package diff computes minimal edit scripts between two ordered snapshots.
//
// Records are matched by id. Ids present in both snapshots that keep their
// relative order are retained and compared by content; every other id is
// removed from the old snapshot or inserted into the new one. A record that
// changed position relative to its neighbours therefore shows up as a Remove
// followed by an Insert.
package diff

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/casefile/internal/model"
)

// Kind is the type of an edit operation.
type Kind int

const (
	Insert Kind = iota
	Remove
	Update
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Op is a single edit operation. Pos is interpreted against the list as it is
// at the moment the op is applied.
type Op struct {
	Kind   Kind         `json:"kind"`
	Pos    int          `json:"pos"`
	ID     ulid.ULID    `json:"id"`
	Record model.Record `json:"record"`
}

// Match describes an id kept in place between the two snapshots.
type Match struct {
	ID     ulid.ULID `json:"id"`
	OldPos int       `json:"old_pos"`
	NewPos int       `json:"new_pos"`
	Same   bool      `json:"same"` // content-equal; no refresh needed
}

// Script is the edit script from one snapshot to the next.
//
// Ops are ordered removes (descending old position), then inserts (ascending
// new position), then updates (ascending new position). Applied in order to
// the old snapshot they produce the new one.
type Script struct {
	Ops      []Op    `json:"ops"`
	Retained []Match `json:"retained"`
}

// Empty reports whether the script changes nothing.
func (s Script) Empty() bool {
	return len(s.Ops) == 0
}

// Counts returns the number of inserts, removes and updates.
func (s Script) Counts() (inserts, removes, updates int) {
	for _, op := range s.Ops {
		switch op.Kind {
		case Insert:
			inserts++
		case Remove:
			removes++
		case Update:
			updates++
		}
	}
	return inserts, removes, updates
}

// Compute returns the edit script transforming prev into next.
func Compute(prev, next model.Snapshot) Script {
	matches := match(prev, next)

	keptOld := make([]bool, len(prev))
	keptNew := make([]bool, len(next))
	for _, m := range matches {
		keptOld[m.OldPos] = true
		keptNew[m.NewPos] = true
	}

	script := Script{
		Ops:      []Op{},
		Retained: []Match{},
	}

	for i := len(prev) - 1; i >= 0; i-- {
		if !keptOld[i] {
			script.Ops = append(script.Ops, Op{Kind: Remove, Pos: i, ID: prev[i].ID, Record: prev[i]})
		}
	}
	for j := range next {
		if !keptNew[j] {
			script.Ops = append(script.Ops, Op{Kind: Insert, Pos: j, ID: next[j].ID, Record: next[j]})
		}
	}
	for _, m := range matches {
		m.Same = prev[m.OldPos].SameContent(next[m.NewPos])
		script.Retained = append(script.Retained, m)
		if !m.Same {
			script.Ops = append(script.Ops, Op{Kind: Update, Pos: m.NewPos, ID: m.ID, Record: next[m.NewPos]})
		}
	}

	return script
}

// match returns the longest common subsequence of ids, ordered by position.
func match(prev, next model.Snapshot) []Match {
	var head []Match
	start := 0
	for start < len(prev) && start < len(next) && prev[start].ID == next[start].ID {
		head = append(head, Match{ID: prev[start].ID, OldPos: start, NewPos: start})
		start++
	}

	endOld, endNew := len(prev), len(next)
	var tail []Match
	for endOld > start && endNew > start && prev[endOld-1].ID == next[endNew-1].ID {
		endOld--
		endNew--
		tail = append(tail, Match{ID: prev[endOld].ID, OldPos: endOld, NewPos: endNew})
	}

	middle := lcs(prev[start:endOld], next[start:endNew])
	for i := range middle {
		middle[i].OldPos += start
		middle[i].NewPos += start
	}

	out := make([]Match, 0, len(head)+len(middle)+len(tail))
	out = append(out, head...)
	out = append(out, middle...)
	for i := len(tail) - 1; i >= 0; i-- {
		out = append(out, tail[i])
	}
	return out
}

// lcs is the classic dynamic program over ids. Ids are unique within a
// snapshot, so ties only arise between distinct alignments of equal length;
// the backtrack prefers advancing in a, which keeps the result deterministic.
func lcs(a, b model.Snapshot) []Match {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}

	// Ids absent from the other side can never match; skip the table when the
	// two sides share nothing.
	inB := make(map[ulid.ULID]struct{}, m)
	for _, r := range b {
		inB[r.ID] = struct{}{}
	}
	shared := false
	for _, r := range a {
		if _, ok := inB[r.ID]; ok {
			shared = true
			break
		}
	}
	if !shared {
		return nil
	}

	// table[i][j] = LCS length of a[i:] and b[j:]
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case a[i].ID == b[j].ID:
				table[i][j] = table[i+1][j+1] + 1
			case table[i+1][j] >= table[i][j+1]:
				table[i][j] = table[i+1][j]
			default:
				table[i][j] = table[i][j+1]
			}
		}
	}

	out := make([]Match, 0, table[0][0])
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i].ID == b[j].ID:
			out = append(out, Match{ID: a[i].ID, OldPos: i, NewPos: j})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}

// Apply replays script against prev and returns the resulting snapshot. prev
// is not modified.
func Apply(prev model.Snapshot, script Script) (model.Snapshot, error) {
	out := prev.Clone()
	for _, op := range script.Ops {
		switch op.Kind {
		case Remove:
			if op.Pos < 0 || op.Pos >= len(out) || out[op.Pos].ID != op.ID {
				return nil, fmt.Errorf("diff: remove %s at %d: position mismatch", op.ID, op.Pos)
			}
			out = append(out[:op.Pos], out[op.Pos+1:]...)
		case Insert:
			if op.Pos < 0 || op.Pos > len(out) {
				return nil, fmt.Errorf("diff: insert %s at %d: out of range", op.ID, op.Pos)
			}
			out = append(out, model.Record{})
			copy(out[op.Pos+1:], out[op.Pos:])
			out[op.Pos] = op.Record
		case Update:
			if op.Pos < 0 || op.Pos >= len(out) || out[op.Pos].ID != op.ID {
				return nil, fmt.Errorf("diff: update %s at %d: position mismatch", op.ID, op.Pos)
			}
			out[op.Pos] = op.Record
		default:
			return nil, fmt.Errorf("diff: unknown op %v", op.Kind)
		}
	}
	return out, nil
}
