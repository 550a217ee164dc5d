package ingest

import (
	"context"
	"fmt"

	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/changetree"
	"github.com/starford/kiln/internal/eav"
)

// Embedder turns block content into vectors. It is implemented outside kiln by
// the enrichment collaborator; the core only stores the result.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// embed returns vectors for changed blocks that are not in the block
// embedding cache yet. Identical content is embedded once.
func (i *Ingestor) embed(ctx context.Context, blocks []eav.Block, changes changetree.ChangeSet) (map[blockhash.Hash][]float32, error) {
	if i.embedder == nil {
		return nil, nil
	}
	content := make(map[blockhash.Hash]string, len(blocks))
	for _, b := range blocks {
		content[b.Hash] = b.Content
	}

	var (
		missing []blockhash.Hash
		texts   []string
	)
	for _, h := range changes.ChangedHashes() {
		text, ok := content[h]
		if !ok {
			continue
		}
		_, cached, err := i.store.BlockEmbedding(ctx, h)
		if err != nil {
			return nil, err
		}
		if cached {
			continue
		}
		missing = append(missing, h)
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed blocks: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed blocks: got %d vectors for %d blocks", len(vecs), len(texts))
	}
	out := make(map[blockhash.Hash][]float32, len(missing))
	for k, h := range missing {
		out[h] = vecs[k]
	}
	return out, nil
}
