package observer

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangeKind classifies one entry of a list changeset.
type ChangeKind int

const (
	Insert ChangeKind = iota
	Remove
	Move
	Update
)

func (k ChangeKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Move:
		return "move"
	case Update:
		return "update"
	}

	return "unknown"
}

// ListChange is a single item-level change. Index is the item's position
// in the new list, or in the old list for removals. From is the old
// position of a moved item.
type ListChange[T any] struct {
	Kind  ChangeKind
	Item  T
	Index int
	From  int
}

// maxDiffIDs bounds the rune alphabet used to encode ids for the diff.
const maxDiffIDs = 6400 + 65534

// encodeIDs maps every distinct id in old and new to a private-use rune
// so the ordered lists can be diffed as strings.
func encodeIDs(oldIDs, newIDs []string) ([]rune, []rune, map[rune]string, bool) {
	alphabet := make(map[string]rune)
	back := make(map[rune]string)

	enc := func(ids []string) ([]rune, bool) {
		out := make([]rune, len(ids))
		for i, id := range ids {
			r, ok := alphabet[id]
			if !ok {
				n := len(alphabet)
				if n >= maxDiffIDs {
					return nil, false
				}

				if n < 6400 {
					r = rune(0xE000 + n)
				} else {
					r = rune(0xF0000 + n - 6400)
				}

				alphabet[id] = r
				back[r] = id
			}

			out[i] = r
		}

		return out, true
	}

	o, ok := enc(oldIDs)
	if !ok {
		return nil, nil, nil, false
	}

	n, ok := enc(newIDs)
	if !ok {
		return nil, nil, nil, false
	}

	return o, n, back, true
}

// diffIDs returns the ids removed from and inserted into the ordered
// list. An id appearing in both was moved.
func diffIDs(oldIDs, newIDs []string) (removed, inserted map[string]struct{}) {
	removed = make(map[string]struct{})
	inserted = make(map[string]struct{})

	o, n, back, ok := encodeIDs(oldIDs, newIDs)
	if !ok {
		for _, id := range oldIDs {
			removed[id] = struct{}{}
		}

		for _, id := range newIDs {
			inserted[id] = struct{}{}
		}

		return removed, inserted
	}

	dmp := diffmatchpatch.New()
	for _, d := range dmp.DiffMainRunes(o, n, false) {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			for _, r := range d.Text {
				removed[back[r]] = struct{}{}
			}
		case diffmatchpatch.DiffInsert:
			for _, r := range d.Text {
				inserted[back[r]] = struct{}{}
			}
		case diffmatchpatch.DiffEqual:
		}
	}

	return removed, inserted
}
