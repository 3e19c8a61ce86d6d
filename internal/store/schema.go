package store

// Schema defines the twelve entity collections of one coordination store.
// Everything lives in a single SQLite file; the layout is an implementation
// detail, not a wire contract.
const Schema = `
CREATE TABLE IF NOT EXISTS memory_store (
	key TEXT NOT NULL,
	namespace TEXT NOT NULL DEFAULT 'default',
	value BLOB NOT NULL,
	metadata TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	expires_at DATETIME,
	PRIMARY KEY (key, namespace)
);

CREATE INDEX IF NOT EXISTS idx_memory_store_expires ON memory_store(expires_at);
CREATE INDEX IF NOT EXISTS idx_memory_store_namespace ON memory_store(namespace);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	last_accessed DATETIME NOT NULL,
	expires_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	capabilities TEXT NOT NULL DEFAULT '[]',
	state TEXT NOT NULL DEFAULT 'idle',
	swarm_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	last_active DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agents_swarm ON agents(swarm_id);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	priority TEXT NOT NULL DEFAULT 'medium',
	assigned_to TEXT,
	dependencies TEXT NOT NULL DEFAULT '[]',
	result BLOB,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_to);

CREATE TABLE IF NOT EXISTS agent_memory (
	agent_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (agent_id, key)
);

CREATE TABLE IF NOT EXISTS shared_state (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_by TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT UNIQUE NOT NULL,
	type TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	data TEXT,
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);

CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	pattern_data TEXT,
	confidence REAL NOT NULL DEFAULT 0,
	usage_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	last_used DATETIME
);

CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(type);

CREATE TABLE IF NOT EXISTS performance_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	metric_name TEXT NOT NULL,
	value REAL NOT NULL,
	tags TEXT NOT NULL DEFAULT '{}',
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metrics_name_time ON performance_metrics(metric_name, timestamp);

CREATE TABLE IF NOT EXISTS workflow_states (
	id TEXT PRIMARY KEY,
	workflow_type TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	checkpoint_data TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS swarm_topology (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	swarm_id TEXT NOT NULL,
	topology_type TEXT NOT NULL DEFAULT '',
	nodes TEXT NOT NULL DEFAULT '[]',
	edges TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_topology_swarm ON swarm_topology(swarm_id);

CREATE TABLE IF NOT EXISTS consensus_proposals (
	key TEXT PRIMARY KEY,
	value BLOB,
	version INTEGER NOT NULL DEFAULT 0,
	proposer TEXT NOT NULL DEFAULT '',
	acceptor_set TEXT NOT NULL DEFAULT '[]',
	accepted_by TEXT NOT NULL DEFAULT '[]',
	updated_at DATETIME NOT NULL
);
`

// Collections enumerates every table in entity order. Used by status
// reporting and by backup verification.
var Collections = []string{
	"memory_store",
	"sessions",
	"agents",
	"tasks",
	"agent_memory",
	"shared_state",
	"events",
	"patterns",
	"performance_metrics",
	"workflow_states",
	"swarm_topology",
	"consensus_proposals",
}
