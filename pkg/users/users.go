// Package users holds the provisioned credential table and the login
// session of the device.
package users

import (
	"bufio"
	"crypto/subtle"
	"io"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rxanders35/mesh/pkg/ledger"
)

const (
	DemoUser = "demo"
	DemoPIN  = "00000000"

	PINLength = 8
)

var (
	// ErrAuth errors when a user name and PIN pair is not provisioned
	ErrAuth = errors.New("login failed")
	// ErrNoSession errors when a session id is unknown or logged out
	ErrNoSession = errors.New("no such session")
)

// provisioning lines are "<name> <8 digit pin>"
var credentialLine = regexp.MustCompile(`^\s*(\w+)\s+(\d{8})\s*$`)

type Credential struct {
	Name string `db:"username"`
	PIN  string `db:"pin"`
}

// Table is the read-only credential table.
type Table interface {
	Lookup(name string) (pin string, ok bool)
}

type StaticTable struct {
	pins map[string]string
}

func NewStaticTable(creds []Credential) *StaticTable {
	t := &StaticTable{pins: make(map[string]string, len(creds))}
	for _, c := range creds {
		t.pins[c.Name] = c.PIN
	}
	return t
}

func (t *StaticTable) Lookup(name string) (string, bool) {
	pin, ok := t.pins[name]
	return pin, ok
}

func (t *StaticTable) Len() int { return len(t.pins) }

// ParseProvisioning reads a users file. Lines that do not look like a
// credential are ignored. The demo user is always added.
func ParseProvisioning(r io.Reader) ([]Credential, error) {
	var creds []Credential
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := credentialLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		if len(m[1]) > ledger.MaxUserNameLen {
			return nil, errors.Errorf("user name %q is longer than %d bytes", m[1], ledger.MaxUserNameLen)
		}
		creds = append(creds, Credential{Name: m[1], PIN: m[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read users file")
	}
	return append(creds, Credential{Name: DemoUser, PIN: DemoPIN}), nil
}

// Session is an authenticated user. It is passed to every operation that
// acts on behalf of a user.
type Session struct {
	ID   uuid.UUID
	Name ledger.UserName
}

// Authenticate checks name and pin against table.
func Authenticate(table Table, name, pin string) (Session, error) {
	if name == "" || pin == "" {
		return Session{}, errors.Wrap(ErrAuth, "empty user name or pin")
	}
	user, err := ledger.NewUserName(name)
	if err != nil {
		return Session{}, errors.Wrap(ErrAuth, err.Error())
	}
	want, ok := table.Lookup(name)
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(pin)) != 1 {
		return Session{}, ErrAuth
	}
	return Session{ID: uuid.New(), Name: user}, nil
}

// Registry holds the one current session of the device. A new login
// replaces the previous one.
type Registry struct {
	mu      sync.Mutex
	current *Session
}

func (r *Registry) Set(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = &s
}

func (r *Registry) Get(id uuid.UUID) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.ID != id {
		return Session{}, ErrNoSession
	}
	return *r.current, nil
}

// Clear drops the current session if it has this id.
func (r *Registry) Clear(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.ID != id {
		return false
	}
	r.current = nil
	return true
}
