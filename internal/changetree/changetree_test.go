package changetree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/blockhash"
)

func leaf(typ, content string) Leaf {
	return Leaf{Type: typ, Hash: blockhash.Sum(typ, []byte(content))}
}

// doc builds a document of nSections sections, each a heading followed by perSection paragraphs.
func doc(nSections, perSection int) []Leaf {
	var out []Leaf
	for s := 0; s < nSections; s++ {
		out = append(out, leaf(HeadingType, fmt.Sprintf("section %d", s)))
		for p := 0; p < perSection; p++ {
			out = append(out, leaf("paragraph", fmt.Sprintf("s%d p%d", s, p)))
		}
	}
	return out
}

func TestBuild_Sections(t *testing.T) {
	leaves := []Leaf{
		leaf("paragraph", "preamble"),
		leaf(HeadingType, "A"),
		leaf("paragraph", "a1"),
		leaf(HeadingType, "B"),
		leaf("code", "b1"),
		leaf("list", "b2"),
	}
	tree := Build(leaves)

	require.Len(t, tree.Sections, 3)
	assert.Equal(t, 0, tree.Sections[0].Start)
	assert.Equal(t, 1, tree.Sections[1].Start)
	assert.Equal(t, 3, tree.Sections[2].Start)
	assert.Len(t, tree.Sections[2].Leaves, 3)
	assert.Equal(t, 6, tree.BlockCount())
	assert.Equal(t, 2, tree.SectionOf(4))
	assert.Equal(t, -1, tree.SectionOf(6))
	assert.False(t, tree.Root.IsZero())
	require.NoError(t, tree.Verify())
}

func TestBuild_Empty(t *testing.T) {
	tree := Build(nil)
	assert.True(t, tree.Root.IsZero())
	assert.Empty(t, tree.Sections)
	assert.Equal(t, 0, tree.BlockCount())
	assert.NoError(t, tree.Verify())
}

func TestBuild_RootChangesIffLeafChanges(t *testing.T) {
	a := Build(doc(3, 4))
	b := Build(doc(3, 4))
	assert.Equal(t, a.Root, b.Root)

	edited := doc(3, 4)
	edited[7] = leaf("paragraph", "changed")
	c := Build(edited)
	assert.NotEqual(t, a.Root, c.Root)
	assert.Equal(t, a.Sections[0].Hash, c.Sections[0].Hash)
	assert.NotEqual(t, a.Sections[1].Hash, c.Sections[1].Hash)
	assert.Equal(t, a.Sections[2].Hash, c.Sections[2].Hash)
}

func TestBuild_CustomRule(t *testing.T) {
	leaves := doc(2, 2)
	tree := Build(leaves, WithSectionRule(func(Leaf) bool { return false }))
	require.Len(t, tree.Sections, 1)
	assert.Len(t, tree.Sections[0].Leaves, len(leaves))
}

func TestDiff_EmptyIdempotence(t *testing.T) {
	cases := map[string][]Leaf{
		"zero blocks":   nil,
		"preamble only": {leaf("paragraph", "x")},
		"many sections": doc(10, 5),
	}
	for name, leaves := range cases {
		t.Run(name, func(t *testing.T) {
			cs := Diff(Build(leaves), Build(leaves))
			assert.True(t, cs.Empty())
			assert.Equal(t, len(leaves), cs.TotalBlocks)
			assert.Zero(t, cs.ChangedBlocks)
			assert.Zero(t, cs.LeavesVisited)
		})
	}
}

func TestDiff_NilTrees(t *testing.T) {
	cs := Diff(nil, nil)
	assert.True(t, cs.Empty())

	cs = Diff(nil, Build(doc(1, 1)))
	require.Len(t, cs.Changes, 2)
	for _, ch := range cs.Changes {
		assert.Equal(t, Added, ch.Kind)
	}
	assert.Equal(t, 2, cs.ChangedBlocks)

	cs = Diff(Build(doc(1, 1)), nil)
	require.Len(t, cs.Changes, 2)
	assert.Equal(t, Removed, cs.Changes[0].Kind)
	assert.Zero(t, cs.ChangedBlocks)
}

func TestDiff_ShortCircuit(t *testing.T) {
	const sections, per = 20, 10
	old := doc(sections, per)
	edited := doc(sections, per)
	k := 7*(per+1) + 3 // a paragraph in section 7
	edited[k] = leaf("paragraph", "edited")

	cs := Diff(Build(old), Build(edited))

	require.Len(t, cs.Changes, 1)
	ch := cs.Changes[0]
	assert.Equal(t, Modified, ch.Kind)
	assert.Equal(t, k, ch.Position)
	assert.Equal(t, 7, ch.Section)
	assert.Equal(t, old[k].Hash, ch.OldHash)
	assert.Equal(t, edited[k].Hash, ch.NewHash)

	assert.Equal(t, sections, cs.SectionsCompared)
	assert.Equal(t, 1, cs.SectionsExpanded)
	assert.Equal(t, per+1, cs.LeavesVisited)
	assert.Equal(t, sections*(per+1), cs.TotalBlocks)
	assert.Equal(t, 1, cs.ChangedBlocks)
	assert.Equal(t, []blockhash.Hash{edited[k].Hash}, cs.ChangedHashes())
}

func TestDiff_TwoSectionScenario(t *testing.T) {
	before := []Leaf{
		leaf(HeadingType, "# A"),
		leaf("paragraph", "para1"),
		leaf(HeadingType, "# B"),
		leaf("paragraph", "para2"),
	}
	after := append([]Leaf(nil), before...)
	after[3] = leaf("paragraph", "para2-edited")

	cs := Diff(Build(before), Build(after))

	require.Len(t, cs.Changes, 1)
	assert.Equal(t, 3, cs.Changes[0].Position)
	assert.Equal(t, 1, cs.Changes[0].Section)
	for _, ch := range cs.Changes {
		assert.NotEqual(t, 0, ch.Section, "section A must not report changes")
	}
	assert.Equal(t, 4, cs.TotalBlocks)
	assert.Equal(t, 1, cs.ChangedBlocks)
}

func TestDiff_PositionalInsertShiftsTail(t *testing.T) {
	before := []Leaf{
		leaf(HeadingType, "A"),
		leaf("paragraph", "one"),
		leaf("paragraph", "two"),
		leaf("paragraph", "three"),
	}
	after := []Leaf{
		leaf(HeadingType, "A"),
		leaf("paragraph", "inserted"),
		leaf("paragraph", "one"),
		leaf("paragraph", "two"),
		leaf("paragraph", "three"),
	}

	cs := Diff(Build(before), Build(after))
	assert.Len(t, cs.Changes, 4)
	assert.Equal(t, 4, cs.ChangedBlocks)

	cs = Diff(Build(before), Build(after), WithContentSetDiff())
	require.Len(t, cs.Changes, 1)
	assert.Equal(t, Added, cs.Changes[0].Kind)
	assert.Equal(t, 1, cs.Changes[0].Position)
	assert.Equal(t, []blockhash.Hash{leaf("paragraph", "inserted").Hash}, cs.ChangedHashes())
}

func TestDiff_ContentSetRemoval(t *testing.T) {
	before := []Leaf{leaf(HeadingType, "A"), leaf("paragraph", "x"), leaf("paragraph", "y")}
	after := []Leaf{leaf(HeadingType, "A"), leaf("paragraph", "y")}

	cs := Diff(Build(before), Build(after), WithMode(ContentSet))
	require.Len(t, cs.Changes, 1)
	assert.Equal(t, Removed, cs.Changes[0].Kind)
	assert.Equal(t, 1, cs.Changes[0].Position)
	assert.Zero(t, cs.ChangedBlocks)
	assert.Empty(t, cs.ChangedHashes())
}

func TestDiff_SectionAddedAndRemoved(t *testing.T) {
	cs := Diff(Build(doc(2, 1)), Build(doc(3, 1)))
	require.Len(t, cs.Changes, 2)
	assert.Equal(t, Added, cs.Changes[0].Kind)
	assert.Equal(t, 2, cs.Changes[0].Section)
	assert.Equal(t, 3, cs.SectionsCompared)
	assert.Equal(t, 1, cs.SectionsExpanded)

	cs = Diff(Build(doc(3, 1)), Build(doc(2, 1)))
	require.Len(t, cs.Changes, 2)
	assert.Equal(t, Removed, cs.Changes[1].Kind)
	assert.Equal(t, 5, cs.Changes[1].Position)
}

func TestDiff_DuplicateBlocksCollapseInChangedHashes(t *testing.T) {
	dup := leaf("paragraph", "same")
	before := []Leaf{leaf(HeadingType, "A"), leaf("paragraph", "x"), leaf("paragraph", "y")}
	after := []Leaf{leaf(HeadingType, "A"), dup, dup}

	cs := Diff(Build(before), Build(after))
	assert.Equal(t, 2, cs.ChangedBlocks)
	assert.Equal(t, []blockhash.Hash{dup.Hash}, cs.ChangedHashes())
}

func TestParseDiffMode(t *testing.T) {
	m, ok := ParseDiffMode("")
	assert.True(t, ok)
	assert.Equal(t, Positional, m)

	m, ok = ParseDiffMode("content_set")
	assert.True(t, ok)
	assert.Equal(t, ContentSet, m)

	_, ok = ParseDiffMode("fuzzy")
	assert.False(t, ok)
}

func TestVerify_DetectsCorruption(t *testing.T) {
	tree := Build(doc(2, 2))
	tree.Sections[1].Leaves[1].Hash = blockhash.Sum("paragraph", []byte("tampered"))

	err := tree.Verify()
	require.Error(t, err)
	assert.True(t, apperr.IsCorruption(err))
	assert.False(t, apperr.IsRetryable(err))

	tree = Build(doc(2, 2))
	tree.Root = blockhash.Sum("x", nil)
	assert.True(t, apperr.IsCorruption(tree.Verify()))
}
