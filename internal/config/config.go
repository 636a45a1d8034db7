// Package config reads the TOML file that describes a slice: which
// tables to sync, by which key, and where upstream/downstream live.
// The TOML is decoded directly into the public Slice type, with no
// intermediate document struct or converter; the document shape is
// slicetool's own (connection args + per-table sync directives) rather
// than the teacher's portable-schema document.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"tablesync/internal/core"
)

// ConnArgs holds everything needed to open a connection to one side of
// a sync (spec §6's "connection_args", passed through to the Dumper/
// Loader as well as used for the live *sql.DB pool). Cipher mirrors the
// original tool's RemoteArgs.cipher: when set, the Dumper/Loader must
// request it for the mysql/mysqldump TLS handshake.
type ConnArgs struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	Cipher   string `toml:"cipher"`
	Socket   string `toml:"socket"`
}

// DSN renders args as a go-sql-driver/mysql data source name.
func (a ConnArgs) DSN() string {
	port := a.Port
	if port == 0 {
		port = 3306
	}
	if a.Socket != "" {
		return fmt.Sprintf("%s:%s@unix(%s)/%s?parseTime=true&multiStatements=true",
			a.User, a.Password, a.Socket, a.Database)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		a.User, a.Password, a.Host, port, a.Database)
}

// TableSpec is one entry in a slice's [[tables]] list: a sync
// directive for a single table (grounded on example_sync.py's
// `steps[table] = lambda: sync(table, zoom_levels)` pattern, made
// declarative instead of code).
type TableSpec struct {
	Name          string   `toml:"name"`
	IDColumn      string   `toml:"id_column"`
	ZoomLevels    []int64  `toml:"zoom_levels"`
	CompositeKeys []string `toml:"composite_keys"`
	Condition     string   `toml:"condition"`
	Skip          bool     `toml:"skip"`
}

// IsComposite reports whether this table syncs by composite key
// (spec §4.8) rather than by a single auto-increment id column.
func (t TableSpec) IsComposite() bool {
	return len(t.CompositeKeys) > 0
}

func (t TableSpec) idColumn() string {
	if t.IDColumn == "" {
		return "id"
	}
	return t.IDColumn
}

// Slice is a named collection of tables to bring downstream in sync
// with upstream, plus the two connections to use while doing it
// (grounded on slice.py:main + example_sync.py:get_steps).
type Slice struct {
	Name       string      `toml:"name"`
	Lite       bool        `toml:"lite"`
	Upstream   ConnArgs    `toml:"upstream"`
	Downstream ConnArgs    `toml:"downstream"`
	Tables     []TableSpec `toml:"tables"`
}

// Load reads and decodes a slice definition from path.
func Load(path string) (*Slice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a slice definition from r.
func Decode(r io.Reader) (*Slice, error) {
	var s Slice
	if _, err := toml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("config: decode slice: %w", err)
	}
	for i := range s.Tables {
		if s.Tables[i].IDColumn == "" {
			s.Tables[i].IDColumn = s.Tables[i].idColumn()
		}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s Slice) validate() error {
	if s.Name == "" {
		return &core.ConfigInvalidError{Msg: "slice has no name"}
	}
	if s.Upstream.Host == "" && s.Upstream.Socket == "" {
		return &core.ConfigInvalidError{Msg: "upstream connection has neither host nor socket"}
	}
	if s.Downstream.Host == "" && s.Downstream.Socket == "" {
		return &core.ConfigInvalidError{Msg: "downstream connection has neither host nor socket"}
	}
	if len(s.Tables) == 0 {
		return &core.ConfigInvalidError{Msg: "slice has no tables"}
	}
	for _, t := range s.Tables {
		if t.Name == "" {
			return &core.ConfigInvalidError{Msg: "a table entry has no name"}
		}
		if !t.Skip && !t.IsComposite() && len(t.ZoomLevels) == 0 {
			return &core.ConfigInvalidError{Msg: fmt.Sprintf("table %q has no zoom_levels and no composite_keys", t.Name)}
		}
	}
	return nil
}
