package eav

import (
	"context"

	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/query/render"
)

// EntityStorage creates, reads and deletes entities.
type EntityStorage interface {
	// CreateEntity assigns an ID when e.ID is empty and sets timestamps and
	// version. A duplicate path returns an already-exists error.
	CreateEntity(ctx context.Context, e *Entity) error
	// UpdateEntity overwrites mutable fields and bumps the version.
	UpdateEntity(ctx context.Context, e *Entity) error
	GetEntity(ctx context.Context, id string) (*Entity, error)
	GetEntityByPath(ctx context.Context, path string) (*Entity, error)
	// DeleteEntity removes the entity with its properties, blocks, tags and
	// outgoing relations. Incoming relations become unresolved.
	DeleteEntity(ctx context.Context, id string) error
	ListEntities(ctx context.Context, f EntityFilter) ([]Entity, error)
	CountEntities(ctx context.Context, f EntityFilter) (int, error)
}

// PropertyStorage manages namespaced properties.
type PropertyStorage interface {
	SetProperty(ctx context.Context, p Property) error
	GetProperty(ctx context.Context, entityID, namespace, key string) (*Property, error)
	DeleteProperty(ctx context.Context, entityID, namespace, key string) error
	// ListProperties returns all properties of an entity ordered by namespace and key.
	ListProperties(ctx context.Context, entityID string) ([]Property, error)
	// FindByProperty returns the IDs of entities holding exactly this value.
	FindByProperty(ctx context.Context, namespace, key string, value PropertyValue) ([]string, error)
	// ReplaceProperties swaps every property of entityID in namespace for props.
	ReplaceProperties(ctx context.Context, entityID, namespace string, props []Property) error
}

// RelationStorage manages typed directed edges. An empty relType matches all types.
type RelationStorage interface {
	AddRelation(ctx context.Context, r *Relation) error
	RemoveRelation(ctx context.Context, id string) error
	Outgoing(ctx context.Context, entityID, relType string) ([]Relation, error)
	Incoming(ctx context.Context, entityID, relType string) ([]Relation, error)
	AllRelations(ctx context.Context, relType string) ([]Relation, error)
	// ReplaceRelations swaps every outgoing relation of entityID for rels.
	ReplaceRelations(ctx context.Context, entityID string, rels []Relation) error
	// ResolveDangling binds unresolved relations whose Target is one of names
	// to entityID and returns how many were bound.
	ResolveDangling(ctx context.Context, entityID string, names []string) (int, error)
}

// BlockStorage manages ordered, content-addressed blocks.
type BlockStorage interface {
	// UpsertBlock writes the block at (EntityID, Position).
	UpsertBlock(ctx context.Context, b Block) error
	// Blocks returns the blocks of an entity ordered by position.
	Blocks(ctx context.Context, entityID string) ([]Block, error)
	// BlockByHash returns any block with this hash, regardless of owner.
	BlockByHash(ctx context.Context, hash blockhash.Hash) (*Block, error)
	// TruncateBlocks deletes blocks at positions >= from.
	TruncateBlocks(ctx context.Context, entityID string, from int) error
}

// TagStorage manages the tag taxonomy.
type TagStorage interface {
	AttachTag(ctx context.Context, entityID, name string) error
	DetachTag(ctx context.Context, entityID, name string) error
	// ReplaceTags sets the exact tag list of an entity.
	ReplaceTags(ctx context.Context, entityID string, names []string) error
	// EntitiesByTag returns IDs of entities tagged name or any descendant of name.
	EntitiesByTag(ctx context.Context, name string) ([]string, error)
	ListTags(ctx context.Context) ([]Tag, error)
	TagsFor(ctx context.Context, entityID string) ([]string, error)
}

// EmbeddingStorage keeps opaque embedding vectors for entities and a cache of
// block embeddings keyed by block hash.
type EmbeddingStorage interface {
	SetEmbedding(ctx context.Context, entityID string, vec []float32) error
	// Embedding returns nil without error when none is stored.
	Embedding(ctx context.Context, entityID string) ([]float32, error)
	SetBlockEmbedding(ctx context.Context, hash blockhash.Hash, vec []float32) error
	BlockEmbedding(ctx context.Context, hash blockhash.Hash) ([]float32, bool, error)
}

// SearchStorage provides unranked-by-contract full-text lookup over titles and blocks.
type SearchStorage interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// Row is one result row of an executed query.
type Row = map[string]any

// Store composes every capability behind one connection so an ingestion
// transaction can touch all of them atomically.
type Store interface {
	EntityStorage
	PropertyStorage
	RelationStorage
	BlockStorage
	TagStorage
	EmbeddingStorage
	SearchStorage

	// Update runs fn in one transaction. Readers never observe a partially
	// applied fn. An error from fn or a cancelled ctx rolls everything back.
	Update(ctx context.Context, fn func(tx Store) error) error
	// Execute runs a rendered query against this backend.
	Execute(ctx context.Context, q *render.RenderedQuery) ([]Row, error)
	// Backend names the query dialect this store executes.
	Backend() string
	Close() error
}
