package swap

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"

	"github.com/sarchlab/vmsim/mem/vm"
)

// SQLiteStore keeps swapped pages in a SQLite database, one row per slot.
type SQLiteStore struct {
	*sql.DB

	lock     sync.Mutex
	path     string
	pageSize int

	fetchStmt   *sql.Stmt
	persistStmt *sql.Stmt
	releaseStmt *sql.Stmt
}

// NewSQLiteStore opens a swap database at path. An empty path creates a new
// uniquely named database in the working directory.
func NewSQLiteStore(path string, pageSize int) (*SQLiteStore, error) {
	if path == "" {
		path = "vmsim_swap_" + xid.New().String() + ".sqlite3"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		DB:       db,
		path:     path,
		pageSize: pageSize,
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the location of the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) init() error {
	_, err := s.Exec(`CREATE TABLE IF NOT EXISTS swap_slot (
	pid  INTEGER NOT NULL,
	vpn  INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (pid, vpn)
);`)
	if err != nil {
		return fmt.Errorf("creating swap table: %w", err)
	}

	s.fetchStmt, err = s.Prepare(
		`SELECT data FROM swap_slot WHERE pid = ? AND vpn = ?`)
	if err != nil {
		return err
	}

	s.persistStmt, err = s.Prepare(
		`INSERT OR REPLACE INTO swap_slot (pid, vpn, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}

	s.releaseStmt, err = s.Prepare(
		`DELETE FROM swap_slot WHERE pid = ? AND vpn = ?`)

	return err
}

// Fetch reads the slot of the page.
func (s *SQLiteStore) Fetch(id vm.PageID) ([]byte, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var data []byte
	err := s.fetchStmt.QueryRow(id.PID, int64(id.VPN)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	if s.pageSize > 0 && len(data) != s.pageSize {
		return nil, true, fmt.Errorf("page %s holds %d bytes: %w",
			id, len(data), ErrCorruptSlot)
	}

	return data, true, nil
}

// Persist writes the slot of the page.
func (s *SQLiteStore) Persist(id vm.PageID, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.persistStmt.Exec(id.PID, int64(id.VPN), data)

	return err
}

// Release deletes the slot of the page.
func (s *SQLiteStore) Release(id vm.PageID) {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.releaseStmt.Exec(id.PID, int64(id.VPN))
	if err != nil {
		fmt.Fprintf(os.Stderr, "releasing swap slot of %s: %v\n", id, err)
	}
}

// NumSlots counts the slots in use.
func (s *SQLiteStore) NumSlots() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	var n int
	err := s.QueryRow(`SELECT COUNT(*) FROM swap_slot`).Scan(&n)
	if err != nil {
		panic(err)
	}

	return n
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, stmt := range []*sql.Stmt{s.fetchStmt, s.persistStmt, s.releaseStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.DB.Close()
}
