package host

import (
	"database/sql"
	"fmt"
	"unsafe"

	_ "modernc.org/sqlite"

	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/value"
)

// RulesDB is the read-only handle behind the db.lookup native (spec.md
// section 3's expansion: "a small on-disk ACL/redirect table"). Grounded
// on sentra's internal/database.DBConn, trimmed to the one pure-Go
// driver this host actually needs — see DESIGN.md for why the teacher's
// lib/pq and go-sql-driver/mysql sibling drivers were not carried over.
type RulesDB struct {
	db *sql.DB
}

// OpenRulesDB opens the SQLite file at path and pings it. The driver's
// default open mode creates an empty database file if none exists.
func OpenRulesDB(path string) (*RulesDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("host: opening rules database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("host: pinging rules database: %w", err)
	}
	return &RulesDB{db: db}, nil
}

func (r *RulesDB) Close() error { return r.db.Close() }

// RegisterDB installs db.lookup(table, key) -> STRING against r. table
// is passed as a value rather than baked into the SQL string at
// registration time, matching how the rest of the native stdlib treats
// every argument as coming from a register, but is validated against an
// allowlist before use since it is interpolated into the query.
func (r *RulesDB) RegisterDB(reg *native.Registry) error {
	_, err := reg.Register("db.lookup", native.KindFunction, r.lookup)
	return err
}

var validRulesTables = map[string]bool{
	"acl":       true,
	"redirects": true,
}

func (r *RulesDB) lookup(p *native.Params) error {
	table := (*value.StringVal)(p.Argv[1].Ptr()).String()
	key := (*value.StringVal)(p.Argv[2].Ptr()).String()

	if !validRulesTables[table] {
		p.Argv[0] = value.RegFromPtr(unsafe.Pointer(p.Runner.NewString("")))
		return nil
	}

	query := fmt.Sprintf("SELECT value FROM %s WHERE key = ?", table)
	var result string
	err := r.db.QueryRow(query, key).Scan(&result)
	if err == sql.ErrNoRows {
		result = ""
	} else if err != nil {
		return fmt.Errorf("host: db.lookup(%q, %q): %w", table, key, err)
	}

	p.Argv[0] = value.RegFromPtr(unsafe.Pointer(p.Runner.NewString(result)))
	return nil
}
