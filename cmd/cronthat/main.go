package main

import (
	"context"
	"os"

	"github.com/t77yq/cronthat/internal/cli"
)

func main() {
	app := cli.NewApp()
	os.Exit(app.Execute(context.Background(), os.Args[1:]))
}
