package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/rxanders35/mesh/pkg/api"
	"github.com/rxanders35/mesh/pkg/config"
	"github.com/rxanders35/mesh/pkg/flash"
	"github.com/rxanders35/mesh/pkg/games"
	"github.com/rxanders35/mesh/pkg/mesh"
	"github.com/rxanders35/mesh/pkg/metrics"
	"github.com/rxanders35/mesh/pkg/users"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.App{
		Name:  "meshd",
		Usage: "game install ledger on SPI-NOR flash",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path of the TOML config file", EnvVars: []string{"MESH_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "Override log_level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"MESH_LOG_LEVEL"}},
			&cli.StringFlag{Name: "image", Usage: "Override the flash image path", TakesFile: true},
			&cli.StringFlag{Name: "games", Usage: "Override the games directory"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Boot the device and serve the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Override the listen address"},
				},
				Action: serve,
			},
			{
				Name:  "dump",
				Usage: "Hex dump a region of the flash",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "offset", Value: 0x40, Usage: "Start offset"},
					&cli.UintFlag{Name: "size", Value: 256, Usage: "Number of bytes"},
				},
				Action: dump,
			},
			{
				Name:   "reset",
				Usage:  "Erase the whole flash and set it up as on first boot",
				Action: reset,
			},
			{
				Name:  "provision",
				Usage: "Load a users file into a credential database",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Required: true, Usage: "Users file, one \"name pin\" per line", TakesFile: true},
					&cli.StringFlag{Name: "to", Required: true, Usage: "SQLite database to write", TakesFile: true},
				},
				Action: provision,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("meshd failed")
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("image") {
		cfg.Flash.Image = c.String("image")
	}
	if c.IsSet("games") {
		cfg.Games.Dir = c.String("games")
	}
	if c.IsSet("addr") {
		cfg.Server.Addr = c.String("addr")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.SetupLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type device struct {
	svc      *mesh.Service
	medium   *flash.FileMedium
	registry *prometheus.Registry
}

func (d *device) Close() error { return d.medium.Close() }

func openDevice(cfg *config.Config) (*device, error) {
	table, err := loadUsers(cfg.Users)
	if err != nil {
		return nil, err
	}
	defaults := cfg.Defaults
	if cfg.Games.DefaultsFile != "" {
		f, err := os.Open(cfg.Games.DefaultsFile)
		if err != nil {
			return nil, errors.Wrap(err, "open defaults file")
		}
		more, err := games.ParseDefaults(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		defaults = append(defaults, more...)
	}

	medium, err := flash.OpenFileMedium(cfg.Flash.Image, uint32(cfg.Flash.Size))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	svc := mesh.New(
		flash.New(medium, flash.WithMetrics(met)),
		games.NewDir(cfg.Games.Dir),
		table,
		mesh.WithMetrics(met),
		mesh.WithDefaults(defaults),
	)
	return &device{svc: svc, medium: medium, registry: reg}, nil
}

func loadUsers(cfg config.UsersConfig) (users.Table, error) {
	switch {
	case cfg.Database != "":
		db, err := users.OpenSQL(cfg.Database)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return users.LoadSQL(db)
	case cfg.File != "":
		f, err := os.Open(cfg.File)
		if err != nil {
			return nil, errors.Wrap(err, "open users file")
		}
		defer f.Close()
		creds, err := users.ParseProvisioning(f)
		if err != nil {
			return nil, err
		}
		return users.NewStaticTable(creds), nil
	}
	logrus.Warn("no users configured, only the demo user can log in")
	return users.NewStaticTable([]users.Credential{{Name: users.DemoUser, PIN: users.DemoPIN}}), nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.svc.Boot(c.Context); err != nil {
		return errors.Wrap(err, "boot")
	}

	s := api.NewHTTPServer(cfg.Server.Addr, d.svc, d.registry)
	go func() {
		if err := s.Run(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server run error. Why: %v", err)
		}
	}()
	logrus.Infof("serving on %s", cfg.Server.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shut down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return errors.Wrap(s.Shutdown(ctx), "graceful shutdown failed")
}

func dump(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	out, err := d.svc.Dump(c.Context, uint32(c.Uint("offset")), uint32(c.Uint("size")))
	if err != nil {
		return err
	}
	fmt.Printf("Flash dump at 0x%x, %d bytes:\n", out.Offset, len(out.Data))
	fmt.Print(out.Hex())
	fmt.Printf("blake3 %s\n", out.Digest)
	return nil
}

func reset(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.svc.ResetFlash(c.Context)
}

func provision(c *cli.Context) error {
	f, err := os.Open(c.String("from"))
	if err != nil {
		return errors.Wrap(err, "open users file")
	}
	defer f.Close()

	creds, err := users.ParseProvisioning(f)
	if err != nil {
		return err
	}
	db, err := users.OpenSQL(c.String("to"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := users.WriteSQL(db, creds); err != nil {
		return err
	}
	logrus.Infof("provisioned %d users into %s", len(creds), c.String("to"))
	return nil
}
