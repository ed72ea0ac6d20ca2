package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	MaxGameNameLen = 31
	MaxUserNameLen = 15
)

var (
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidFullName = errors.New("game name must look like name-vMAJOR.MINOR")
)

// GameName is a game's short name, at most MaxGameNameLen bytes.
type GameName string

// UserName is a local user's name, at most MaxUserNameLen bytes.
type UserName string

func NewGameName(s string) (GameName, error) {
	if err := checkName(s, MaxGameNameLen); err != nil {
		return "", errors.Wrapf(err, "game %q", s)
	}
	return GameName(s), nil
}

func NewUserName(s string) (UserName, error) {
	if err := checkName(s, MaxUserNameLen); err != nil {
		return "", errors.Wrapf(err, "user %q", s)
	}
	return UserName(s), nil
}

// TruncateUserName cuts s to MaxUserNameLen bytes.
func TruncateUserName(s string) UserName {
	if len(s) > MaxUserNameLen {
		s = s[:MaxUserNameLen]
	}
	return UserName(s)
}

func checkName(s string, limit int) error {
	switch {
	case len(s) == 0:
		return errors.Wrap(ErrInvalidName, "empty")
	case len(s) > limit:
		return errors.Wrapf(ErrInvalidName, "longer than %d bytes", limit)
	case strings.IndexByte(s, 0) >= 0:
		return errors.Wrap(ErrInvalidName, "contains NUL")
	}
	return nil
}

type Version struct {
	Major uint32
	Minor uint32
}

func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// FullName renders the package name a game is distributed under.
func FullName(game GameName, v Version) string {
	return fmt.Sprintf("%s-v%d.%d", game, v.Major, v.Minor)
}

// ParseFullName splits "chess-v1.2" into its short name and version.
func ParseFullName(s string) (GameName, Version, error) {
	dash := strings.IndexByte(s, '-')
	if dash < 0 {
		return "", Version{}, errors.Wrapf(ErrInvalidFullName, "%q", s)
	}
	game, err := NewGameName(s[:dash])
	if err != nil {
		return "", Version{}, err
	}

	rest := s[dash+1:]
	if !strings.HasPrefix(rest, "v") {
		return "", Version{}, errors.Wrapf(ErrInvalidFullName, "%q", s)
	}
	majorStr, minorStr, ok := strings.Cut(rest[1:], ".")
	if !ok {
		return "", Version{}, errors.Wrapf(ErrInvalidFullName, "%q", s)
	}
	major, err := ParseVersionField(majorStr)
	if err != nil {
		return "", Version{}, errors.Wrapf(ErrInvalidFullName, "%q: %v", s, err)
	}
	minor, err := ParseVersionField(minorStr)
	if err != nil {
		return "", Version{}, errors.Wrapf(ErrInvalidFullName, "%q: %v", s, err)
	}
	return game, Version{Major: major, Minor: minor}, nil
}

// ParseVersionField parses one decimal version component.
func ParseVersionField(s string) (uint32, error) {
	if s == "" {
		return 0, errors.New("empty version field")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, errors.Errorf("version field %q is not decimal", s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "version field %q", s)
	}
	return uint32(n), nil
}
