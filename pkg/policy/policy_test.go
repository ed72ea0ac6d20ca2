package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rxanders35/mesh/pkg/header"
	"github.com/rxanders35/mesh/pkg/ledger"
)

func rec(status ledger.Status, user, game string, major, minor uint32) ledger.Entry {
	return ledger.Entry{Record: ledger.Record{
		Status:  status,
		Game:    ledger.GameName(game),
		Version: ledger.Version{Major: major, Minor: minor},
		User:    ledger.UserName(user),
	}}
}

func v(major, minor uint32) ledger.Version {
	return ledger.Version{Major: major, Minor: minor}
}

func TestIsAuthorized(t *testing.T) {
	h := header.GameHeader{Users: []ledger.UserName{"alice", "bob"}}
	require.True(t, IsAuthorized(h, "alice"))
	require.True(t, IsAuthorized(h, "bob"))
	require.False(t, IsAuthorized(h, "carol"))
	require.False(t, IsAuthorized(h, "alic"))
	require.False(t, IsAuthorized(header.GameHeader{}, "alice"))
}

func TestIsInstalled(t *testing.T) {
	records := []ledger.Entry{
		rec(ledger.StatusUninstalled, "alice", "chess", 1, 0),
		rec(ledger.StatusInstalled, "bob", "chess", 1, 0),
		rec(ledger.StatusInstalled, "alice", "chess", 1, 1),
	}
	require.False(t, IsInstalled(records, "alice", "chess", v(1, 0)))
	require.True(t, IsInstalled(records, "alice", "chess", v(1, 1)))
	require.True(t, IsInstalled(records, "bob", "chess", v(1, 0)))
	require.False(t, IsInstalled(records, "alice", "pong", v(1, 1)))
}

func TestClassifyInstall(t *testing.T) {
	for _, tc := range []struct {
		name    string
		records []ledger.Entry
		version ledger.Version
		want    Class
	}{
		{"empty", nil, v(1, 0), Ok},
		{"upgrade", []ledger.Entry{rec(ledger.StatusInstalled, "alice", "chess", 1, 0)}, v(1, 1), Ok},
		{"older major", []ledger.Entry{rec(ledger.StatusInstalled, "alice", "chess", 2, 0)}, v(1, 9), Downgrade},
		{"older minor", []ledger.Entry{rec(ledger.StatusInstalled, "alice", "chess", 1, 2)}, v(1, 1), Downgrade},
		{"tombstoned newer still blocks", []ledger.Entry{rec(ledger.StatusUninstalled, "alice", "chess", 1, 2)}, v(1, 1), Downgrade},
		{"reinstall after uninstall", []ledger.Entry{rec(ledger.StatusUninstalled, "alice", "chess", 1, 0)}, v(1, 0), Ok},
		{"duplicate", []ledger.Entry{rec(ledger.StatusInstalled, "alice", "chess", 1, 0)}, v(1, 0), DuplicateInstalled},
		{"downgrade beats duplicate", []ledger.Entry{
			rec(ledger.StatusInstalled, "alice", "chess", 1, 0),
			rec(ledger.StatusUninstalled, "alice", "chess", 2, 0),
		}, v(1, 0), Downgrade},
		{"downgrade beats earlier duplicate in any order", []ledger.Entry{
			rec(ledger.StatusUninstalled, "alice", "chess", 2, 0),
			rec(ledger.StatusInstalled, "alice", "chess", 1, 0),
		}, v(1, 0), Downgrade},
		{"other user ignored", []ledger.Entry{rec(ledger.StatusInstalled, "bob", "chess", 9, 9)}, v(1, 0), Ok},
		{"other game ignored", []ledger.Entry{rec(ledger.StatusInstalled, "alice", "pong", 9, 9)}, v(1, 0), Ok},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyInstall(tc.records, "alice", "chess", tc.version))
		})
	}
}

func TestValidateInstall_Order(t *testing.T) {
	authorized := header.GameHeader{Version: v(1, 0), Users: []ledger.UserName{"alice"}}
	stranger := header.GameHeader{Version: v(1, 0), Users: []ledger.UserName{"bob"}}
	installed := []ledger.Entry{rec(ledger.StatusInstalled, "alice", "chess", 1, 0)}
	newer := []ledger.Entry{rec(ledger.StatusUninstalled, "alice", "chess", 2, 0)}

	for _, tc := range []struct {
		name string
		req  Request
		want error
	}{
		{"missing wins over everything", Request{Exists: false, Header: stranger, Records: installed}, ErrNotFound},
		{"unauthorized before installed", Request{Exists: true, Header: stranger, Records: installed}, ErrUnauthorized},
		{"unauthorized regardless of version", Request{Exists: true, Header: stranger, Records: nil}, ErrUnauthorized},
		{"installed before downgrade", Request{Exists: true, Header: authorized, Records: append(installed, newer...)}, ErrAlreadyInstalled},
		{"downgrade", Request{Exists: true, Header: authorized, Records: newer}, ErrDowngrade},
		{"ok", Request{Exists: true, Header: authorized}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.User = "alice"
			tc.req.Game = "chess"
			tc.req.Version = v(1, 0)
			err := ValidateInstall(tc.req)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
			var ie *InstallError
			require.ErrorAs(t, err, &ie)
			require.Equal(t, "chess-v1.0", ie.Game)
		})
	}
}

func TestCheckPlay(t *testing.T) {
	records := []ledger.Entry{
		rec(ledger.StatusInstalled, "alice", "chess", 1, 0),
		rec(ledger.StatusInstalled, "alice", "chess", 1, 1),
	}
	require.ErrorIs(t, CheckPlay(records, "alice", "chess", v(1, 0)), ErrDowngrade)
	require.NoError(t, CheckPlay(records, "alice", "chess", v(1, 1)))
}
