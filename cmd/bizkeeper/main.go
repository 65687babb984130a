package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/bizkeeper/internal/app"
	"github.com/dmitrijs2005/bizkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/bizkeeper/internal/cli"
	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/dmitrijs2005/bizkeeper/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	passphrase, err := cli.ReadPassphrase(os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	a, err := app.NewApp(ctx, cfg, passphrase)
	common.WipeByteArray(passphrase)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	if err := a.Run(ctx, cli.New(a, os.Stdin).Run); err != nil {
		log.Printf("%v", err)
	}

}
