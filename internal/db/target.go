package db

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Engine identifies the database family behind a Target.
type Engine string

const (
	EnginePostgres Engine = "postgres"
	EngineSQLite   Engine = "sqlite"
)

// ErrMissingTarget is returned by ParseTarget when the connection string is empty.
var ErrMissingTarget = errors.New("database target is not set")

// Target is a validated connection descriptor. DSN carries credentials and must not be logged; use String.
type Target struct {
	Engine   Engine
	Driver   string // database/sql driver name
	DSN      string // value passed to sql.Open
	Host     string
	Port     uint16
	Database string
	User     string
}

// ParseTarget validates a connection string without doing any I/O.
// Accepted forms: postgres:// or postgresql:// URLs, libpq keyword/value strings (host=... dbname=...),
// and sqlite://<path> (sqlite://:memory: for a private in-memory database).
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, ErrMissingTarget
	}

	scheme := urlScheme(raw)
	switch scheme {
	case "sqlite", "sqlite3":
		return parseSQLite(raw[len(scheme)+len("://"):])
	case "postgres", "postgresql":
		return parsePostgres(raw)
	case "":
		if !strings.Contains(raw, "=") {
			return Target{}, errors.New("connection string is neither a URL nor key=value pairs")
		}
		return parsePostgres(raw)
	default:
		return Target{}, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

// urlScheme returns the lower-cased scheme when raw starts with "<scheme>://", otherwise "".
// A "://" inside a keyword/value value (password=a://b) is not a scheme: the prefix must be an
// RFC 3986 scheme token, which rules out '=' and spaces.
func urlScheme(raw string) string {
	i := strings.Index(raw, "://")
	if i <= 0 {
		return ""
	}
	for j, c := range raw[:i] {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return ""
		}
	}
	return strings.ToLower(raw[:i])
}

func parsePostgres(raw string) (Target, error) {
	cfg, err := pgx.ParseConfig(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid postgres connection string: %w", err)
	}
	if cfg.Database == "" {
		return Target{}, errors.New("postgres connection string does not name a database")
	}
	return Target{
		Engine:   EnginePostgres,
		Driver:   "pgx",
		DSN:      raw,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		User:     cfg.User,
	}, nil
}

func parseSQLite(path string) (Target, error) {
	if path == "" || strings.HasPrefix(path, "?") {
		return Target{}, errors.New("sqlite connection string has no path")
	}
	return Target{
		Engine:   EngineSQLite,
		Driver:   "sqlite",
		DSN:      path,
		Database: path,
	}, nil
}

// String returns the target identity with credentials removed.
func (t Target) String() string {
	switch t.Engine {
	case EngineSQLite:
		db := t.Database
		if i := strings.IndexByte(db, '?'); i >= 0 {
			db = db[:i]
		}
		return "sqlite://" + db
	case EnginePostgres:
		u := url.URL{Scheme: "postgres", Path: "/" + t.Database}
		if t.User != "" {
			u.User = url.User(t.User)
		}
		u.Host = t.Host
		if t.Port != 0 {
			u.Host += ":" + strconv.Itoa(int(t.Port))
		}
		return u.String()
	default:
		return "<unset>"
	}
}
