package commands

import (
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/datafundament/pandregister/pkg/apiserver"
	"github.com/datafundament/pandregister/pkg/backend"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/version"
)

type apiServerCommand struct{}

func (s *apiServerCommand) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalContext()

	log := logrus.WithField("command", "api-server")

	log.Infof("version: %v", version.Get())

	database, err := db.New(ctx, c.String("sql-dialect"), c.String("sql-dsn"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return err
	}

	back := backend.NewBackend(database, c.Int64("session-ttl-seconds"), c.Int64("purge-interval-seconds"))

	environment := c.String("environment")
	apiServer := apiserver.NewAPIServer(ctx, log, apiserver.Config{
		Port: c.Int("port"),
		OIDC: apiserver.OIDCConfig{
			Issuer:   c.String("oidc-issuer"),
			ClientID: c.String("oidc-client-id"),
		},
		LocalLogin: c.Bool("local-login") || environment == "local",
		StaticRoot: c.String("static-root"),
	})

	if err := apiServer.Start(back); err != nil {
		return err
	}

	return nil
}

func serverCommand() *cli.Command {
	cmd := apiServerCommand{}

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port for the HTTP Server Port",
			EnvVars: []string{"PAND_PORT", "PORT"},
			Value:   4480,
		},
		&cli.StringFlag{
			Name:    "oidc-issuer",
			Usage:   "OIDC issuer URL; empty disables OIDC login",
			EnvVars: []string{"PAND_OIDC_ISSUER"},
		},
		&cli.StringFlag{
			Name:    "oidc-client-id",
			Usage:   "OIDC client id",
			EnvVars: []string{"PAND_OIDC_CLIENT_ID"},
		},
		&cli.Int64Flag{
			Name:    "session-ttl-seconds",
			Usage:   "How long a local login session stays valid",
			EnvVars: []string{"PAND_SESSION_TTL"},
			Value:   60 * 60 * 12,
		},
		&cli.Int64Flag{
			Name:    "purge-interval-seconds",
			Usage:   "How often expired sessions are purged",
			EnvVars: []string{"PAND_PURGE_INTERVAL"},
			Value:   60 * 15,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment name; \"local\" implies --local-login",
			EnvVars: []string{"PAND_ENVIRONMENT"},
			Value:   "local",
		},
		&cli.BoolFlag{
			Name:    "local-login",
			Usage:   "Expose username/password login next to OIDC",
			EnvVars: []string{"PAND_LOCAL_LOGIN"},
		},
		&cli.StringFlag{
			Name:    "static-root",
			Usage:   "Directory with the frontend bundle; empty disables static serving",
			EnvVars: []string{"PAND_STATIC_ROOT"},
		},
	}
	flags = append(flags, sqlFlags()...)

	return &cli.Command{
		Name:   "api-server",
		Usage:  "pandregister api server",
		Action: cmd.Execute,
		Flags:  append(flags, GlobalFlags()...),
		Before: Before,
	}
}
