// Package policy decides whether a user may install a game, given the
// current install table and the package header. It has no side effects.
package policy

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/rxanders35/mesh/pkg/header"
	"github.com/rxanders35/mesh/pkg/ledger"
)

var (
	ErrNotFound         = errors.New("game does not exist")
	ErrUnauthorized     = errors.New("user is not allowed to install this game")
	ErrAlreadyInstalled = errors.New("game is already installed")
	ErrDowngrade        = errors.New("downgrade not allowed, later version is already installed")
)

// InstallError tells why an install was refused. Reason is one of the
// sentinel errors above.
type InstallError struct {
	Reason error
	Game   string
	User   ledger.UserName
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s for %s: %v", e.Game, e.User, e.Reason)
}

func (e *InstallError) Unwrap() error { return e.Reason }

type Class int

const (
	Ok Class = iota
	Downgrade
	DuplicateInstalled
)

func (c Class) String() string {
	switch c {
	case Ok:
		return "ok"
	case Downgrade:
		return "downgrade"
	case DuplicateInstalled:
		return "duplicate"
	}
	return "unknown"
}

func IsAuthorized(h header.GameHeader, user ledger.UserName) bool {
	for _, u := range h.Users {
		if u == user {
			return true
		}
	}
	return false
}

// IsInstalled reports whether user has this exact version of game installed.
func IsInstalled(records []ledger.Entry, user ledger.UserName, game ledger.GameName, v ledger.Version) bool {
	for _, e := range records {
		r := e.Record
		if r.Status == ledger.StatusInstalled && r.User == user && r.Game == game && r.Version == v {
			return true
		}
	}
	return false
}

// ClassifyInstall weighs v against every record of game for user, including
// uninstalled ones. Any newer version on record is a downgrade, which wins
// over an installed duplicate.
func ClassifyInstall(records []ledger.Entry, user ledger.UserName, game ledger.GameName, v ledger.Version) Class {
	class := Ok
	for _, e := range records {
		r := e.Record
		if r.Status == ledger.StatusEnd || r.User != user || r.Game != game {
			continue
		}
		switch {
		case v.Less(r.Version):
			return Downgrade
		case v == r.Version && r.Status == ledger.StatusInstalled:
			class = DuplicateInstalled
		}
	}
	return class
}

type Request struct {
	// Exists is whether the package is present on the games medium.
	Exists  bool
	Header  header.GameHeader
	Records []ledger.Entry
	User    ledger.UserName
	Game    ledger.GameName
	// Version is the version named in the request.
	Version ledger.Version
}

// ValidateInstall runs the checks in order: existence, authorization,
// already installed, version ordering against the header's version.
func ValidateInstall(req Request) error {
	refuse := func(reason error) error {
		return &InstallError{Reason: reason, Game: ledger.FullName(req.Game, req.Version), User: req.User}
	}

	if !req.Exists {
		return refuse(ErrNotFound)
	}
	if !IsAuthorized(req.Header, req.User) {
		return refuse(ErrUnauthorized)
	}
	if IsInstalled(req.Records, req.User, req.Game, req.Version) {
		return refuse(ErrAlreadyInstalled)
	}
	switch ClassifyInstall(req.Records, req.User, req.Game, req.Header.Version) {
	case Downgrade:
		return refuse(ErrDowngrade)
	case DuplicateInstalled:
		return refuse(ErrAlreadyInstalled)
	}
	return nil
}

// CheckPlay refuses to run a version older than one on record.
func CheckPlay(records []ledger.Entry, user ledger.UserName, game ledger.GameName, v ledger.Version) error {
	if ClassifyInstall(records, user, game, v) == Downgrade {
		return &InstallError{Reason: ErrDowngrade, Game: ledger.FullName(game, v), User: user}
	}
	return nil
}
