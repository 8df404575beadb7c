package main

import (
	"github.com/somahq/soma/storage/database"
)

var migrateRunFunc = database.Migrate // mockable

func (cli *commandLine) migrate() error {
	return migrateRunFunc(cli.db, cli.conf)
}
