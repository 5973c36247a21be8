// Command instalist runs the InstaList sync server and its admin commands.
//
// @title                      InstaList Sync API
// @version                    1.0
// @description                Shopping-list synchronization server for paired devices.
// @BasePath                   /api/v1
// @securityDefinitions.basic  BasicAuth
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/instalist/instalist-server/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "instalist:", err)
		os.Exit(1)
	}
}
