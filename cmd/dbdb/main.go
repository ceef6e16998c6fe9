// dbdb is a small command-line front end for a dbdb database file:
// get, set and delete single keys without writing any Go.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dacapoday/dbdb/kv"
)

func main() {
	app := &cli.App{
		Name:  "dbdb",
		Usage: "inspect and edit a dbdb database file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "path to the database file",
				Required: true,
			},
		},
		Commands: []*cli.Command{
			getCommand,
			setCommand,
			deleteCommand,
			lenCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dbdb: %v\n", err)
		os.Exit(1)
	}
}

var getCommand = &cli.Command{
	Name:      "get",
	Usage:     "print the value stored under a key",
	ArgsUsage: "<key>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("expected exactly one key argument", 1)
		}
		db, err := kv.Open(c.String("file"))
		if err != nil {
			return err
		}
		defer db.Close()

		value, err := db.Get([]byte(c.Args().First()))
		if err != nil {
			return err
		}
		fmt.Println(string(value))
		return nil
	},
}

var setCommand = &cli.Command{
	Name:      "set",
	Usage:     "set a key to a value and commit",
	ArgsUsage: "<key> <value>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("expected exactly a key and a value argument", 1)
		}
		db, err := kv.Open(c.String("file"))
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Set([]byte(c.Args().Get(0)), []byte(c.Args().Get(1))); err != nil {
			return err
		}
		return db.Commit()
	},
}

var deleteCommand = &cli.Command{
	Name:      "delete",
	Usage:     "delete a key and commit",
	ArgsUsage: "<key>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("expected exactly one key argument", 1)
		}
		db, err := kv.Open(c.String("file"))
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Delete([]byte(c.Args().First())); err != nil {
			return err
		}
		return db.Commit()
	},
}

var lenCommand = &cli.Command{
	Name:  "len",
	Usage: "print the number of keys in the database",
	Action: func(c *cli.Context) error {
		db, err := kv.Open(c.String("file"))
		if err != nil {
			return err
		}
		defer db.Close()

		length, err := db.Len()
		if err != nil {
			return err
		}
		fmt.Println(length)
		return nil
	},
}
