package changetree

import (
	"github.com/starford/kiln/internal/blockhash"
)

// ChangeKind describes how a block position differs between two trees.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Removed  ChangeKind = "removed"
)

// Change is one changed block.
type Change struct {
	Kind ChangeKind `json:"kind"`
	// Section is the section index in the new tree (old tree for removals).
	Section int `json:"section"`
	// Position is the block position within the document.
	Position int            `json:"position"`
	OldHash  blockhash.Hash `json:"old_hash,omitempty"`
	NewHash  blockhash.Hash `json:"new_hash,omitempty"`
}

// ChangeSet is the result of Diff.
type ChangeSet struct {
	Changes []Change `json:"changes"`

	// TotalBlocks is the block count of the new tree.
	TotalBlocks int `json:"total_blocks"`
	// ChangedBlocks counts changes that leave a block to (re-)process.
	ChangedBlocks int `json:"changed_blocks"`

	// Traversal counters.
	SectionsCompared int `json:"sections_compared"`
	SectionsExpanded int `json:"sections_expanded"`
	LeavesVisited    int `json:"leaves_visited"`
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c.Changes) == 0
}

// ChangedHashes returns the distinct new hashes of added or modified blocks,
// in document order. These are the blocks an enrichment pass must re-process.
func (c ChangeSet) ChangedHashes() []blockhash.Hash {
	seen := make(map[blockhash.Hash]struct{}, len(c.Changes))
	var out []blockhash.Hash
	for _, ch := range c.Changes {
		if ch.Kind == Removed || ch.NewHash.IsZero() {
			continue
		}
		if _, ok := seen[ch.NewHash]; ok {
			continue
		}
		seen[ch.NewHash] = struct{}{}
		out = append(out, ch.NewHash)
	}
	return out
}

// ChangedPositions returns positions in the new document that were added or modified.
func (c ChangeSet) ChangedPositions() []int {
	var out []int
	for _, ch := range c.Changes {
		if ch.Kind != Removed {
			out = append(out, ch.Position)
		}
	}
	return out
}

// DiffMode selects how leaves of a changed section are compared.
type DiffMode int

const (
	// Positional compares leaves by position; an insertion reports every
	// later position in the section as changed.
	Positional DiffMode = iota
	// ContentSet reports a leaf as changed only when its hash is absent
	// from the other version of the section.
	ContentSet
)

// ParseDiffMode maps a config value to a DiffMode.
func ParseDiffMode(s string) (DiffMode, bool) {
	switch s {
	case "", "positional":
		return Positional, true
	case "content_set":
		return ContentSet, true
	}
	return Positional, false
}

// DiffOption configures Diff.
type DiffOption func(*diffOptions)

type diffOptions struct {
	mode DiffMode
}

// WithMode selects the leaf comparison strategy.
func WithMode(mode DiffMode) DiffOption {
	return func(o *diffOptions) { o.mode = mode }
}

// WithContentSetDiff is shorthand for WithMode(ContentSet).
func WithContentSetDiff() DiffOption {
	return WithMode(ContentSet)
}

// Diff computes the blocks that differ between old and new. Either tree may
// be nil, which is treated as an empty document.
func Diff(old, new *Tree, opts ...DiffOption) ChangeSet {
	o := diffOptions{mode: Positional}
	for _, opt := range opts {
		opt(&o)
	}
	if old == nil {
		old = &Tree{}
	}
	if new == nil {
		new = &Tree{}
	}

	cs := ChangeSet{TotalBlocks: new.BlockCount()}
	if old.Root == new.Root && old.count == new.count {
		return cs
	}

	n := max(len(old.Sections), len(new.Sections))
	for i := 0; i < n; i++ {
		var os, ns *Section
		if i < len(old.Sections) {
			os = &old.Sections[i]
		}
		if i < len(new.Sections) {
			ns = &new.Sections[i]
		}

		cs.SectionsCompared++
		if os != nil && ns != nil && os.Hash == ns.Hash {
			continue
		}
		cs.SectionsExpanded++

		switch o.mode {
		case ContentSet:
			diffContentSet(&cs, i, os, ns)
		default:
			diffPositional(&cs, i, os, ns)
		}
	}

	for _, ch := range cs.Changes {
		if ch.Kind != Removed {
			cs.ChangedBlocks++
		}
	}
	return cs
}

func diffPositional(cs *ChangeSet, section int, os, ns *Section) {
	var oldLeaves, newLeaves []Leaf
	var oldStart, newStart int
	if os != nil {
		oldLeaves, oldStart = os.Leaves, os.Start
	}
	if ns != nil {
		newLeaves, newStart = ns.Leaves, ns.Start
	}

	n := max(len(oldLeaves), len(newLeaves))
	for j := 0; j < n; j++ {
		cs.LeavesVisited++
		switch {
		case j >= len(oldLeaves):
			cs.Changes = append(cs.Changes, Change{
				Kind: Added, Section: section, Position: newStart + j, NewHash: newLeaves[j].Hash,
			})
		case j >= len(newLeaves):
			cs.Changes = append(cs.Changes, Change{
				Kind: Removed, Section: section, Position: oldStart + j, OldHash: oldLeaves[j].Hash,
			})
		case oldLeaves[j].Hash != newLeaves[j].Hash:
			cs.Changes = append(cs.Changes, Change{
				Kind: Modified, Section: section, Position: newStart + j,
				OldHash: oldLeaves[j].Hash, NewHash: newLeaves[j].Hash,
			})
		}
	}
}

func diffContentSet(cs *ChangeSet, section int, os, ns *Section) {
	oldSet := make(map[blockhash.Hash]int)
	newSet := make(map[blockhash.Hash]int)
	if os != nil {
		for _, l := range os.Leaves {
			oldSet[l.Hash]++
		}
	}
	if ns != nil {
		for _, l := range ns.Leaves {
			newSet[l.Hash]++
		}
	}

	if ns != nil {
		for j, l := range ns.Leaves {
			cs.LeavesVisited++
			if oldSet[l.Hash] > 0 {
				oldSet[l.Hash]--
				continue
			}
			cs.Changes = append(cs.Changes, Change{
				Kind: Added, Section: section, Position: ns.Start + j, NewHash: l.Hash,
			})
		}
	}
	if os != nil {
		for j, l := range os.Leaves {
			cs.LeavesVisited++
			if newSet[l.Hash] > 0 {
				newSet[l.Hash]--
				continue
			}
			cs.Changes = append(cs.Changes, Change{
				Kind: Removed, Section: section, Position: os.Start + j, OldHash: l.Hash,
			})
		}
	}
}
