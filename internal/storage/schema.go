package storage

const schema = `
-- The 'blobs' table holds the replica's persisted collections, one JSON
-- document per key (decks, cards, settings).
CREATE TABLE IF NOT EXISTS blobs (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at DATETIME NOT NULL
);
`
