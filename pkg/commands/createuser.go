package commands

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/datafundament/pandregister/pkg/backend"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/rand"
)

type createUserCmd struct{}

func (s *createUserCmd) Execute(c *cli.Context) error {
	database, err := db.New(context.Background(), c.String("sql-dialect"), c.String("sql-dsn"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return err
	}

	back := backend.NewBackend(database, 0, 0)

	password := c.String("password")
	generated := password == ""
	if generated {
		password = rand.Password(16)
	}

	if err := back.CreateUser(c.String("username"), password, c.Bool("staff")); err != nil {
		return err
	}

	logrus.Infof("created user %s", c.String("username"))
	if generated {
		// the one place the secret is ever shown
		fmt.Printf("%s\n", password)
	}
	return nil
}

func createUserCommand() *cli.Command {
	cmd := createUserCmd{}

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "username",
			Usage:    "Username for the new account",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "password",
			Usage: "Password; generated and printed when omitted",
		},
		&cli.BoolFlag{
			Name:  "staff",
			Usage: "Grant the account staff rights",
			Value: true,
		},
	}
	flags = append(flags, sqlFlags()...)

	return &cli.Command{
		Name:   "create-user",
		Usage:  "create a local login account",
		Action: cmd.Execute,
		Flags:  append(flags, GlobalFlags()...),
		Before: Before,
	}
}
