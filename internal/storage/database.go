package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"mindvault/internal/config"
	"mindvault/internal/models"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for the given driver type.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present and the built-in roles
// are seeded. Profile sub-record tables are generated from the field
// catalog so the DDL cannot drift from the tool schemas.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS roles (
				name TEXT PRIMARY KEY,
				max_active_sessions INTEGER NOT NULL DEFAULT 0,
				daily_message_limit INTEGER NOT NULL DEFAULT 0,
				session_duration_hours INTEGER NOT NULL DEFAULT 0,
				test_message_limit INTEGER NOT NULL DEFAULT 0,
				test_duration_hours INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				role_name TEXT NOT NULL DEFAULT 'default',
				messages_sent_today INTEGER NOT NULL DEFAULT 0,
				last_message_date TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				FOREIGN KEY(role_name) REFERENCES roles(name)
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
			`CREATE TABLE IF NOT EXISTS chat_sessions (
				token TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL,
				external_id TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				expires_at DATETIME,
				active INTEGER NOT NULL DEFAULT 1,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, active)`,
			`CREATE TABLE IF NOT EXISTS turns (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_token TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT,
				tool_calls TEXT,
				tool_call_id TEXT,
				tool_name TEXT,
				tool_result TEXT,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(session_token) REFERENCES chat_sessions(token) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_token)`,
		}
		stmts = append(stmts, profileDDL("sqlite3")...)
		stmts = append(stmts, seedRoles("sqlite3")...)
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS roles (
				name VARCHAR(100) NOT NULL PRIMARY KEY,
				max_active_sessions INT NOT NULL DEFAULT 0,
				daily_message_limit INT NOT NULL DEFAULT 0,
				session_duration_hours INT NOT NULL DEFAULT 0,
				test_message_limit INT NOT NULL DEFAULT 0,
				test_duration_hours INT NOT NULL DEFAULT 0
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				username VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				role_name VARCHAR(100) NOT NULL DEFAULT 'default',
				messages_sent_today INT NOT NULL DEFAULT 0,
				last_message_date VARCHAR(10) NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				CONSTRAINT fk_users_role FOREIGN KEY (role_name) REFERENCES roles(name)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				user_id BIGINT UNSIGNED NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				INDEX idx_user_tokens_user (user_id),
				CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_sessions (
				token VARCHAR(64) NOT NULL PRIMARY KEY,
				user_id BIGINT UNSIGNED NOT NULL,
				external_id VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				expires_at DATETIME NULL,
				active TINYINT(1) NOT NULL DEFAULT 1,
				INDEX idx_chat_sessions_user (user_id, active),
				CONSTRAINT fk_chat_sessions_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS turns (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				session_token VARCHAR(64) NOT NULL,
				role VARCHAR(20) NOT NULL,
				content MEDIUMTEXT,
				tool_calls MEDIUMTEXT,
				tool_call_id VARCHAR(255),
				tool_name VARCHAR(100),
				tool_result MEDIUMTEXT,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_turns_session (session_token),
				CONSTRAINT fk_turns_session FOREIGN KEY (session_token) REFERENCES chat_sessions(token) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
		stmts = append(stmts, profileDDL("mysql")...)
		stmts = append(stmts, seedRoles("mysql")...)
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

func profileDDL(driver string) []string {
	var stmts []string
	for _, rec := range models.ProfileRecords {
		var b strings.Builder
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", rec.Table)
		if driver == "mysql" {
			b.WriteString("\tuser_id BIGINT UNSIGNED NOT NULL PRIMARY KEY,\n")
		} else {
			b.WriteString("\tuser_id INTEGER PRIMARY KEY,\n")
		}
		for _, f := range rec.Fields {
			fmt.Fprintf(&b, "\t%s %s,\n", f.Name, columnType(f.Kind, driver))
		}
		b.WriteString("\tcreated_at DATETIME NOT NULL,\n")
		b.WriteString("\tupdated_at DATETIME NOT NULL,\n")
		if driver == "mysql" {
			fmt.Fprintf(&b, "\tCONSTRAINT fk_%s_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE\n", rec.Table)
			b.WriteString(") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4")
		} else {
			b.WriteString("\tFOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE\n)")
		}
		stmts = append(stmts, b.String())
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS goals (\n")
	if driver == "mysql" {
		b.WriteString("\tid BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,\n\tuser_id BIGINT UNSIGNED NOT NULL,\n")
	} else {
		b.WriteString("\tid INTEGER PRIMARY KEY AUTOINCREMENT,\n\tuser_id INTEGER NOT NULL,\n")
	}
	for _, f := range models.GoalRecord.Fields {
		null := ""
		if f.Required {
			null = " NOT NULL"
		}
		fmt.Fprintf(&b, "\t%s %s%s,\n", f.Name, columnType(f.Kind, driver), null)
	}
	b.WriteString("\tcreated_at DATETIME NOT NULL,\n")
	if driver == "mysql" {
		b.WriteString("\tPRIMARY KEY (id),\n\tINDEX idx_goals_user (user_id),\n")
		b.WriteString("\tCONSTRAINT fk_goals_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE\n")
		b.WriteString(") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4")
	} else {
		b.WriteString("\tFOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE\n)")
	}
	stmts = append(stmts, b.String())
	if driver != "mysql" {
		stmts = append(stmts, "CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id)")
	}
	return stmts
}

func columnType(kind models.FieldKind, driver string) string {
	switch kind {
	case models.FieldInteger:
		if driver == "mysql" {
			return "BIGINT"
		}
		return "INTEGER"
	case models.FieldNumber:
		if driver == "mysql" {
			return "DOUBLE"
		}
		return "REAL"
	default:
		if driver == "mysql" {
			return "TEXT"
		}
		return "TEXT"
	}
}

func seedRoles(driver string) []string {
	insert := "INSERT OR IGNORE"
	if driver == "mysql" {
		insert = "INSERT IGNORE"
	}
	return []string{
		fmt.Sprintf(`%s INTO roles (name, max_active_sessions, daily_message_limit, session_duration_hours, test_message_limit, test_duration_hours)
			VALUES ('default', 3, 50, 24, 20, 2)`, insert),
		fmt.Sprintf(`%s INTO roles (name, max_active_sessions, daily_message_limit, session_duration_hours, test_message_limit, test_duration_hours)
			VALUES ('premium', 10, 500, 72, 40, 4)`, insert),
	}
}
