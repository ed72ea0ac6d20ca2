// Package header reads the three text lines at the top of a game package:
//
//	version:MAJOR.MINOR
//	name:DISPLAY NAME
//	users:alice bob ...
//
// Keys are not checked; fields are found by their delimiters, in order.
package header

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/rxanders35/mesh/pkg/ledger"
)

// MaxUsers caps the authorized user list.
const MaxUsers = 5

var ErrMalformed = errors.New("malformed game header")

type GameHeader struct {
	Name    string
	Version ledger.Version
	Users   []ledger.UserName
	// BodyOffset is where the game binary starts, after the header lines.
	BodyOffset int
}

func Parse(raw []byte) (GameHeader, error) {
	var h GameHeader
	t := &tokenizer{s: string(raw)}

	if _, ok := t.next(":"); !ok {
		return h, errors.Wrap(ErrMalformed, "missing version key")
	}
	majorStr, ok := t.next(".")
	if !ok {
		return h, errors.Wrap(ErrMalformed, "missing major version")
	}
	minorStr, ok := t.next("\n")
	if !ok {
		return h, errors.Wrap(ErrMalformed, "missing minor version")
	}
	major, err := ledger.ParseVersionField(strings.TrimSpace(majorStr))
	if err != nil {
		return h, errors.Wrapf(ErrMalformed, "major version: %v", err)
	}
	minor, err := ledger.ParseVersionField(strings.TrimSpace(minorStr))
	if err != nil {
		return h, errors.Wrapf(ErrMalformed, "minor version: %v", err)
	}
	h.Version = ledger.Version{Major: major, Minor: minor}

	if _, ok := t.next(":"); !ok {
		return h, errors.Wrap(ErrMalformed, "missing name key")
	}
	name, ok := t.next("\n")
	if !ok {
		return h, errors.Wrap(ErrMalformed, "missing name")
	}
	name = strings.TrimSuffix(name, "\r")
	if len(name) > ledger.MaxGameNameLen {
		name = name[:ledger.MaxGameNameLen]
	}
	h.Name = name

	if _, ok := t.next(":"); !ok {
		return h, errors.Wrap(ErrMalformed, "missing users key")
	}
	users, ok := t.next("\n")
	if !ok {
		return h, errors.Wrap(ErrMalformed, "missing users")
	}
	h.Users = splitUsers(strings.TrimSuffix(users, "\r"))
	h.BodyOffset = t.pos

	return h, nil
}

// splitUsers splits on single spaces, cutting each name to the user name
// limit and keeping at most MaxUsers.
func splitUsers(s string) []ledger.UserName {
	var out []ledger.UserName
	for len(out) < MaxUsers && s != "" {
		name, rest, _ := strings.Cut(s, " ")
		s = rest
		if name == "" {
			continue
		}
		out = append(out, ledger.TruncateUserName(name))
	}
	return out
}

// tokenizer splits like strtok: leading delimiters are skipped and the
// delimiter ending a token is consumed.
type tokenizer struct {
	s   string
	pos int
}

func (t *tokenizer) next(delims string) (string, bool) {
	for t.pos < len(t.s) && strings.IndexByte(delims, t.s[t.pos]) >= 0 {
		t.pos++
	}
	if t.pos >= len(t.s) {
		return "", false
	}

	start := t.pos
	end := strings.IndexAny(t.s[start:], delims)
	if end < 0 {
		t.pos = len(t.s)
		return t.s[start:], true
	}
	t.pos = start + end + 1
	return t.s[start : start+end], true
}
