package blockhash

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum_Deterministic(t *testing.T) {
	a := Sum("paragraph", []byte("hello world"))
	b := Sum("paragraph", []byte("hello world"))
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())
}

func TestSum_TypeIsPartOfIdentity(t *testing.T) {
	assert.NotEqual(t, Sum("paragraph", []byte("x")), Sum("heading", []byte("x")))
	// Length prefix keeps type/content boundaries unambiguous.
	assert.NotEqual(t, Sum("ab", []byte("c")), Sum("a", []byte("bc")))
}

func TestSum_RandomizedCorpus(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	seen := make(map[Hash]string, 5000)

	for i := 0; i < 5000; i++ {
		buf := make([]byte, 1+rng.Intn(256))
		rng.Read(buf)
		content := string(buf)

		h := Sum("paragraph", buf)
		require.Equal(t, h, Sum("paragraph", []byte(content)), "same bytes must hash identically")

		if prev, ok := seen[h]; ok {
			require.Equal(t, prev, content, "distinct content collided")
		}
		seen[h] = content
	}
}

func TestHex_RoundTrip(t *testing.T) {
	h := Sum("code", []byte("fmt.Println()"))
	s := h.Hex()
	assert.Len(t, s, 64)
	assert.Equal(t, strings.ToLower(s), s)

	back, err := FromHex(s)
	require.NoError(t, err)
	assert.Equal(t, h, back)
}

func TestFromHex_RejectsWrongLength(t *testing.T) {
	_, err := FromHex("abcd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoded length 2")

	_, err = FromHex(strings.Repeat("ab", 33))
	require.Error(t, err)

	_, err = FromHex("zz")
	require.Error(t, err)
}

func TestHash_JSONAndSQL(t *testing.T) {
	h := Sum("heading", []byte("# Title"))

	raw, err := json.Marshal(struct {
		Hash Hash `json:"hash"`
	}{h})
	require.NoError(t, err)
	assert.Contains(t, string(raw), h.Hex())

	var back struct {
		Hash Hash `json:"hash"`
	}
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, h, back.Hash)

	v, err := h.Value()
	require.NoError(t, err)
	var scanned Hash
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, h, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsZero())
}
