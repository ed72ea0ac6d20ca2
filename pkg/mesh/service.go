// Package mesh exposes the install, uninstall and list operations of the
// device on top of the install table, the games medium and the credential
// table.
package mesh

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rxanders35/mesh/pkg/flash"
	"github.com/rxanders35/mesh/pkg/games"
	"github.com/rxanders35/mesh/pkg/header"
	"github.com/rxanders35/mesh/pkg/ledger"
	"github.com/rxanders35/mesh/pkg/metrics"
	"github.com/rxanders35/mesh/pkg/policy"
	"github.com/rxanders35/mesh/pkg/users"
)

// ErrNotInstalled errors when a game is played without being installed.
var ErrNotInstalled = errors.New("game is not installed")

// Service runs one operation at a time; the device has a single thread of
// control and the ledger assumes it.
type Service struct {
	mu       sync.Mutex
	flash    *flash.PagedFlash
	ledger   *ledger.Ledger
	games    games.Catalog
	users    users.Table
	metrics  *metrics.Metrics
	defaults []string
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDefaults sets the games installed for the demo user at boot.
func WithDefaults(names []string) Option {
	return func(s *Service) {
		s.defaults = names
	}
}

func New(f *flash.PagedFlash, catalog games.Catalog, table users.Table, opts ...Option) *Service {
	s := &Service{
		flash:  f,
		ledger: ledger.New(f),
		games:  catalog,
		users:  table,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Boot probes the flash, sets up the install table on first boot and makes
// sure the default games are installed for the demo user.
func (s *Service) Boot(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flash.Probe(); err != nil {
		return errors.Wrap(err, "probe flash")
	}
	return s.boot(ctx)
}

func (s *Service) boot(ctx context.Context) error {
	wrote, err := s.ledger.Initialize()
	if err != nil {
		return errors.Wrap(err, "first time setup")
	}
	if wrote {
		logrus.Info("performed first time setup")
	}

	demo := users.Session{Name: users.DemoUser}
	for _, name := range s.defaults {
		err := s.install(ctx, demo, name)
		switch {
		case err == nil, errors.Is(err, policy.ErrDowngrade), errors.Is(err, policy.ErrAlreadyInstalled):
			continue
		default:
			return errors.Wrapf(err, "install default game %s", name)
		}
	}
	return nil
}

func (s *Service) IsFirstBoot(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.ledger.IsFirstBoot()
}

func (s *Service) InitializeLedger(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.ledger.Initialize()
	return err
}

// Login checks a user name and PIN against the credential table.
func (s *Service) Login(ctx context.Context, name, pin string) (users.Session, error) {
	if err := ctx.Err(); err != nil {
		return users.Session{}, err
	}
	sess, err := users.Authenticate(s.users, name, pin)
	if err != nil {
		logrus.WithField("user", name).Warn("login failed")
		return users.Session{}, err
	}
	logrus.WithField("user", sess.Name).Info("logged in")
	return sess, nil
}

// Install records fullName ("chess-v1.2") as installed for the session user
// if the package exists, authorizes the user and is not a downgrade or a
// reinstall of an installed version.
func (s *Service) Install(ctx context.Context, sess users.Session, fullName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.install(ctx, sess, fullName)
}

func (s *Service) install(ctx context.Context, sess users.Session, fullName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(fullName) > ledger.MaxGameNameLen {
		return errors.Wrapf(ledger.ErrInvalidName, "%q is longer than %d bytes", fullName, ledger.MaxGameNameLen)
	}
	game, version, err := ledger.ParseFullName(fullName)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"game": fullName, "user": sess.Name})

	req := policy.Request{User: sess.Name, Game: game, Version: version}
	req.Exists, err = s.games.Exists(fullName)
	if err != nil {
		return errors.Wrapf(err, "look up %s", fullName)
	}
	if req.Exists {
		raw, err := s.games.Read(fullName)
		if err != nil {
			return errors.Wrapf(err, "read %s", fullName)
		}
		if req.Header, err = header.Parse(raw); err != nil {
			s.metrics.Install(metrics.ResultError)
			return errors.Wrapf(err, "package %s", fullName)
		}
	}
	if req.Records, err = s.ledger.Records(); err != nil {
		s.metrics.Install(metrics.ResultError)
		return err
	}

	if err := policy.ValidateInstall(req); err != nil {
		s.metrics.Install(installResult(err))
		log.WithError(err).Info("install refused")
		return err
	}

	rec := ledger.Record{
		Status:  ledger.StatusInstalled,
		Game:    game,
		Version: version,
		User:    sess.Name,
	}
	if _, err := s.ledger.Append(rec); err != nil {
		s.metrics.Install(metrics.ResultError)
		return errors.Wrapf(err, "install %s", fullName)
	}
	s.metrics.Install(metrics.ResultOK)
	log.Info("installed")
	return nil
}

func installResult(err error) string {
	switch {
	case errors.Is(err, policy.ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, policy.ErrUnauthorized):
		return metrics.ResultUnauthorized
	case errors.Is(err, policy.ErrAlreadyInstalled):
		return metrics.ResultInstalled
	case errors.Is(err, policy.ErrDowngrade):
		return metrics.ResultDowngrade
	}
	return metrics.ResultError
}

// Uninstall tombstones the installed record of fullName for the session
// user. It reports false when there was nothing to uninstall.
func (s *Service) Uninstall(ctx context.Context, sess users.Session, fullName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}

	game, version, err := ledger.ParseFullName(fullName)
	if err != nil {
		return false, err
	}
	e, ok, err := s.ledger.FindInstalled(sess.Name, game, version)
	if err != nil || !ok {
		return false, err
	}
	if err := s.ledger.Tombstone(e.Offset, e.Record); err != nil {
		return false, errors.Wrapf(err, "uninstall %s", fullName)
	}
	s.metrics.Uninstalled()
	logrus.WithFields(logrus.Fields{"game": fullName, "user": sess.Name}).Info("uninstalled")
	return true, nil
}

// ListInstalled returns "name-vMAJOR.MINOR" for every game installed for
// the session user, in install order.
func (s *Service) ListInstalled(ctx context.Context, sess users.Session) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := s.ledger.Records()
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.Record.Status == ledger.StatusInstalled && e.Record.User == sess.Name {
			out = append(out, e.Record.FullName())
		}
	}
	return out, nil
}

// Query lists the packages on the games medium the session user may
// install. Packages with an unreadable header are left out.
func (s *Service) Query(ctx context.Context, sess users.Session) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := s.games.List()
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, name := range names {
		raw, err := s.games.Read(name)
		if err != nil {
			return nil, err
		}
		h, err := header.Parse(raw)
		if err != nil {
			logrus.WithError(err).WithField("package", name).Debug("skipping package")
			continue
		}
		if policy.IsAuthorized(h, sess.Name) {
			out = append(out, name)
		}
	}
	return out, nil
}

// Launch is what the game loader needs to run a package.
type Launch struct {
	Name string
	// Size of the whole package, header included
	Size int64
	// Body is the game binary after the header lines
	Body []byte
}

// Play hands back an installed game for launching, unless a newer version
// of it is on record for the user.
func (s *Service) Play(ctx context.Context, sess users.Session, fullName string) (Launch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Launch{}, err
	}

	game, version, err := ledger.ParseFullName(fullName)
	if err != nil {
		return Launch{}, err
	}
	_, ok, err := s.ledger.FindInstalled(sess.Name, game, version)
	if err != nil {
		return Launch{}, err
	}
	if !ok {
		return Launch{}, errors.Wrapf(ErrNotInstalled, "%s for %s", fullName, sess.Name)
	}

	raw, err := s.games.Read(fullName)
	if err != nil {
		return Launch{}, errors.Wrapf(err, "read %s", fullName)
	}
	h, err := header.Parse(raw)
	if err != nil {
		return Launch{}, errors.Wrapf(err, "package %s", fullName)
	}
	records, err := s.ledger.Records()
	if err != nil {
		return Launch{}, err
	}
	if err := policy.CheckPlay(records, sess.Name, game, h.Version); err != nil {
		return Launch{}, err
	}

	logrus.WithFields(logrus.Fields{"game": fullName, "user": sess.Name, "size": len(raw)}).Info("launching")
	return Launch{Name: fullName, Size: int64(len(raw)), Body: raw[h.BodyOffset:]}, nil
}

// ResetFlash erases the whole flash and sets the device up again as on
// first boot.
func (s *Service) ResetFlash(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	logrus.Warn("resetting flash")
	if err := s.flash.EraseAll(); err != nil {
		return err
	}
	return s.boot(ctx)
}
