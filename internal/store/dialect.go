package store

import (
	"fmt"
	"strings"
)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	name    string
	schema  []string
	vectors bool
	// upsertTail renders the conflict clause updating cols from the
	// inserted row.
	upsertTail func(cols []string) string
}

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

var sqliteDialect = dialect{
	name: DriverSQLite,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			cover_image TEXT NOT NULL DEFAULT '',
			parent_id TEXT,
			owner_id TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			is_expanded INTEGER NOT NULL DEFAULT 0,
			is_favorite INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0,
			is_published INTEGER NOT NULL DEFAULT 0,
			is_full_width INTEGER NOT NULL DEFAULT 0,
			is_locked INTEGER NOT NULL DEFAULT 0,
			font_style TEXT NOT NULL DEFAULT 'default',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent_id)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			props TEXT NOT NULL DEFAULT '{}',
			position INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_document ON blocks(document_id, position)`,
	},
	vectors: true,
	upsertTail: func(cols []string) string {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
		return "ON CONFLICT(id) DO UPDATE SET " + strings.Join(sets, ", ")
	},
}

var mysqlDialect = dialect{
	name: DriverMySQL,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			title TEXT NOT NULL,
			icon VARCHAR(255) NOT NULL DEFAULT '',
			cover_image TEXT NOT NULL,
			parent_id VARCHAR(64) NULL,
			owner_id VARCHAR(64) NOT NULL DEFAULT '',
			position INT NOT NULL DEFAULT 0,
			is_expanded TINYINT(1) NOT NULL DEFAULT 0,
			is_favorite TINYINT(1) NOT NULL DEFAULT 0,
			is_archived TINYINT(1) NOT NULL DEFAULT 0,
			is_published TINYINT(1) NOT NULL DEFAULT 0,
			is_full_width TINYINT(1) NOT NULL DEFAULT 0,
			is_locked TINYINT(1) NOT NULL DEFAULT 0,
			font_style VARCHAR(16) NOT NULL DEFAULT 'default',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_documents_parent (parent_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS blocks (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			document_id VARCHAR(64) NOT NULL,
			type VARCHAR(32) NOT NULL,
			content MEDIUMTEXT NOT NULL,
			props JSON NOT NULL,
			position INT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_blocks_document (document_id, position)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	upsertTail: func(cols []string) string {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	},
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, "sqlite":
		return sqliteDialect, nil
	case DriverMySQL:
		return mysqlDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
