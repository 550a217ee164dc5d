// Package changetree builds a sectioned Merkle tree over a note's blocks and
// diffs two trees to find the blocks that must be re-processed.
//
// Leaves are block hashes, one internal node rolls up each section, and the
// root rolls up the sections. Unchanged sections are detected by comparing a
// single hash, so a diff never visits the leaves of a section that did not change.
package changetree

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/blockhash"
)

// HeadingType is the block type that opens a new section under the default rule.
const HeadingType = "heading"

// Domain bytes keep section and root digests from colliding with block digests.
const (
	sectionDomain byte = 0x01
	rootDomain    byte = 0x02
)

// Leaf is one block as seen by the tree.
type Leaf struct {
	Type string
	Hash blockhash.Hash
}

// SectionRule reports whether leaf starts a new section.
type SectionRule func(leaf Leaf) bool

// HeadingRule starts a section at every heading block.
func HeadingRule(leaf Leaf) bool {
	return leaf.Type == HeadingType
}

// Section is an internal node: a run of consecutive leaves.
type Section struct {
	Hash   blockhash.Hash
	Start  int // position of the first leaf within the document
	Leaves []Leaf
}

// Tree is an immutable change-detection tree for one document version.
type Tree struct {
	Root     blockhash.Hash
	Sections []Section
	count    int
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	rule SectionRule
}

// WithSectionRule overrides the default heading-based sectioning.
func WithSectionRule(rule SectionRule) Option {
	return func(o *buildOptions) {
		if rule != nil {
			o.rule = rule
		}
	}
}

// Build constructs a tree from blocks in document order. Blocks before the
// first section start form their own preamble section. A zero-block document
// produces a tree with no sections and a zero root.
func Build(leaves []Leaf, opts ...Option) *Tree {
	o := buildOptions{rule: HeadingRule}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Tree{count: len(leaves)}
	if len(leaves) == 0 {
		return t
	}

	var cur *Section
	for i, leaf := range leaves {
		if cur == nil || (o.rule(leaf) && len(cur.Leaves) > 0) {
			t.Sections = append(t.Sections, Section{Start: i})
			cur = &t.Sections[len(t.Sections)-1]
		}
		cur.Leaves = append(cur.Leaves, leaf)
	}

	sectionHashes := make([]blockhash.Hash, len(t.Sections))
	for i := range t.Sections {
		t.Sections[i].Hash = combineLeaves(t.Sections[i].Leaves)
		sectionHashes[i] = t.Sections[i].Hash
	}
	t.Root = combine(rootDomain, sectionHashes)
	return t
}

// BlockCount returns the number of leaves in the tree.
func (t *Tree) BlockCount() int {
	if t == nil {
		return 0
	}
	return t.count
}

// SectionOf returns the index of the section holding the leaf at position, or -1.
func (t *Tree) SectionOf(position int) int {
	if t == nil {
		return -1
	}
	for i, s := range t.Sections {
		if position >= s.Start && position < s.Start+len(s.Leaves) {
			return i
		}
	}
	return -1
}

// Verify recomputes every internal hash and reports a corruption error when a
// stored hash does not match its children.
func (t *Tree) Verify() error {
	if t == nil {
		return nil
	}
	total := 0
	hashes := make([]blockhash.Hash, len(t.Sections))
	for i, s := range t.Sections {
		if s.Start != total {
			return apperr.Errorf(apperr.KindCorruption, "changetree: verify",
				"section %d starts at %d, want %d", i, s.Start, total)
		}
		if got := combineLeaves(s.Leaves); got != s.Hash {
			return apperr.Errorf(apperr.KindCorruption, "changetree: verify",
				"section %d hash %s does not match leaves (%s)", i, s.Hash.Short(), got.Short())
		}
		hashes[i] = s.Hash
		total += len(s.Leaves)
	}
	if total != t.count {
		return apperr.Errorf(apperr.KindCorruption, "changetree: verify",
			"leaf count %d, recorded %d", total, t.count)
	}
	want := blockhash.Zero
	if len(hashes) > 0 {
		want = combine(rootDomain, hashes)
	}
	if want != t.Root {
		return apperr.Errorf(apperr.KindCorruption, "changetree: verify",
			"root %s does not match sections (%s)", t.Root.Short(), want.Short())
	}
	return nil
}

func (t *Tree) String() string {
	return fmt.Sprintf("changetree(root=%s sections=%d blocks=%d)", t.Root.Short(), len(t.Sections), t.count)
}

func combineLeaves(leaves []Leaf) blockhash.Hash {
	hashes := make([]blockhash.Hash, len(leaves))
	for i, l := range leaves {
		hashes[i] = l.Hash
	}
	return combine(sectionDomain, hashes)
}

func combine(domain byte, children []blockhash.Hash) blockhash.Hash {
	h := sha256.New()
	var hdr [9]byte
	hdr[0] = domain
	binary.BigEndian.PutUint64(hdr[1:], uint64(len(children)))
	h.Write(hdr[:])
	for _, c := range children {
		h.Write(c[:])
	}
	var out blockhash.Hash
	h.Sum(out[:0])
	return out
}
