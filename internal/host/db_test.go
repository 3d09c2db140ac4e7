package host

import (
	"database/sql"
	"path/filepath"
	"testing"
	"unsafe"

	_ "modernc.org/sqlite"

	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/value"
)

func ptrTo(s *value.StringVal) unsafe.Pointer { return unsafe.Pointer(s) }

func seedRulesDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE acl (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO acl (key, value) VALUES (?, ?)`, "10.0.0.1", "allow"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return path
}

func TestRulesDBLookupHit(t *testing.T) {
	path := seedRulesDB(t)
	rdb, err := OpenRulesDB(path)
	if err != nil {
		t.Fatalf("OpenRulesDB: %v", err)
	}
	defer rdb.Close()

	reg := native.NewRegistry()
	if err := rdb.RegisterDB(reg); err != nil {
		t.Fatalf("RegisterDB: %v", err)
	}
	sym, ok := reg.Lookup("db.lookup")
	if !ok {
		t.Fatal("expected db.lookup to be registered")
	}

	argv := []value.Register{
		value.RegFromInt(0),
		value.RegFromPtr(ptrTo(value.NewString("acl"))),
		value.RegFromPtr(ptrTo(value.NewString("10.0.0.1"))),
	}
	p := &native.Params{Argv: argv, Runner: &RequestContext{}}
	if err := sym.Fn(p); err != nil {
		t.Fatalf("db.lookup: %v", err)
	}
	got := (*value.StringVal)(p.Argv[0].Ptr()).String()
	if got != "allow" {
		t.Fatalf("expected %q, got %q", "allow", got)
	}
}

func TestRulesDBLookupMissRejectsUnknownTable(t *testing.T) {
	path := seedRulesDB(t)
	rdb, err := OpenRulesDB(path)
	if err != nil {
		t.Fatalf("OpenRulesDB: %v", err)
	}
	defer rdb.Close()

	reg := native.NewRegistry()
	if err := rdb.RegisterDB(reg); err != nil {
		t.Fatalf("RegisterDB: %v", err)
	}
	sym, _ := reg.Lookup("db.lookup")

	argv := []value.Register{
		value.RegFromInt(0),
		value.RegFromPtr(ptrTo(value.NewString("sqlite_master"))),
		value.RegFromPtr(ptrTo(value.NewString("anything"))),
	}
	p := &native.Params{Argv: argv, Runner: &RequestContext{}}
	if err := sym.Fn(p); err != nil {
		t.Fatalf("db.lookup: %v", err)
	}
	got := (*value.StringVal)(p.Argv[0].Ptr()).String()
	if got != "" {
		t.Fatalf("expected empty result for a non-allowlisted table, got %q", got)
	}
}
