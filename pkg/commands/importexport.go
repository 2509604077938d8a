package commands

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/datafundament/pandregister/pkg/backend"
	"github.com/datafundament/pandregister/pkg/csvio"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
	"github.com/datafundament/pandregister/pkg/version"
)

func openBackend(c *cli.Context) (backend.Backend, error) {
	database, err := db.New(context.Background(), c.String("sql-dialect"), c.String("sql-dsn"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return nil, err
	}
	return backend.NewBackend(database, 0, 0), nil
}

func batchActor(c *cli.Context) model.Actor {
	return model.Actor{Username: c.String("username"), Staff: true}
}

type importCmd struct{}

func (s *importCmd) Execute(c *cli.Context) error {
	log := logrus.WithField("command", "import")
	log.Infof("version: %v", version.Get())

	back, err := openBackend(c)
	if err != nil {
		return err
	}

	file, err := os.Open(c.String("file"))
	if err != nil {
		return err
	}
	defer file.Close()

	result, err := back.ImportCSV(batchActor(c), file)
	if err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		log.Warn(warning)
	}
	for _, rowErr := range result.Errors {
		log.Error(rowErr)
	}
	log.Infof("imported %d locations from %s", result.Added, c.String("file"))
	return nil
}

func importCommand() *cli.Command {
	cmd := importCmd{}

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "file",
			Usage:    "CSV file to read",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "username",
			Usage: "Actor recorded in the audit log",
			Value: "import",
		},
	}
	flags = append(flags, sqlFlags()...)

	return &cli.Command{
		Name:   "import",
		Usage:  "import locations from a CSV file",
		Action: cmd.Execute,
		Flags:  append(flags, GlobalFlags()...),
		Before: Before,
	}
}

type exportCmd struct{}

func (s *exportCmd) Execute(c *cli.Context) error {
	log := logrus.WithField("command", "export")

	back, err := openBackend(c)
	if err != nil {
		return err
	}

	name := c.String("file")
	if name == "" {
		name = csvio.Filename(time.Now())
	}
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()

	params := model.SearchParams{Archive: c.String("archief")}
	if err := back.ExportCSV(file, batchActor(c), params); err != nil {
		return err
	}

	log.Infof("exported locations to %s", name)
	return nil
}

func exportCommand() *cli.Command {
	cmd := exportCmd{}

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "file",
			Usage: "CSV file to write",
		},
		&cli.StringFlag{
			Name:  "archief",
			Usage: "Which locations to export: active, archived or all",
			Value: "all",
		},
		&cli.StringFlag{
			Name:  "username",
			Usage: "Export as this account; exports include non-public data",
			Value: "export",
		},
	}
	flags = append(flags, sqlFlags()...)

	return &cli.Command{
		Name:   "export",
		Usage:  "export locations to a CSV file",
		Action: cmd.Execute,
		Flags:  append(flags, GlobalFlags()...),
		Before: Before,
	}
}
