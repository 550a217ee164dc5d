package sqlitestore

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	path         TEXT UNIQUE,
	title        TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	version      INTEGER NOT NULL DEFAULT 1,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_title ON entities(title);

CREATE TABLE IF NOT EXISTS properties (
	entity_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	value_type TEXT NOT NULL DEFAULT 'text',
	PRIMARY KEY (entity_id, namespace, key)
);

CREATE INDEX IF NOT EXISTS idx_properties_lookup ON properties(namespace, key, value);

CREATE TABLE IF NOT EXISTS relations (
	id             TEXT PRIMARY KEY,
	from_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	to_entity_id   TEXT REFERENCES entities(id) ON DELETE SET NULL,
	relation_type  TEXT NOT NULL,
	target         TEXT NOT NULL DEFAULT '',
	block_hash     TEXT NOT NULL DEFAULT '',
	position       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_entity_id, relation_type);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_entity_id, relation_type);
CREATE INDEX IF NOT EXISTS idx_relations_dangling ON relations(target) WHERE to_entity_id IS NULL;

CREATE TABLE IF NOT EXISTS blocks (
	entity_id   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	parent      INTEGER NOT NULL DEFAULT -1,
	type        TEXT NOT NULL,
	content     TEXT NOT NULL,
	hash        TEXT NOT NULL,
	byte_offset INTEGER NOT NULL DEFAULT 0,
	level       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_id, position)
);

CREATE INDEX IF NOT EXISTS idx_blocks_hash ON blocks(hash);

CREATE TABLE IF NOT EXISTS tags (
	name   TEXT PRIMARY KEY,
	parent TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS entity_tags (
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	tag       TEXT NOT NULL REFERENCES tags(name),
	position  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_entity_tags_tag ON entity_tags(tag);

CREATE TABLE IF NOT EXISTS embeddings (
	entity_id TEXT PRIMARY KEY REFERENCES entities(id) ON DELETE CASCADE,
	vector    BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS block_embeddings (
	hash   TEXT PRIMARY KEY,
	vector BLOB NOT NULL
);
`
