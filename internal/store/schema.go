package store

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    run_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    file_path TEXT NOT NULL,
    action_mark INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS undo_actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    checkpoint_id INTEGER,
    kind TEXT NOT NULL,
    target TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    undone_at TEXT,
    FOREIGN KEY (checkpoint_id) REFERENCES checkpoints(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_undo_checkpoint ON undo_actions(checkpoint_id);
CREATE INDEX IF NOT EXISTS idx_undo_pending ON undo_actions(undone_at);
`
