package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

// 价差套利守护进程。
// 用法：
//
//	spreadd run -config configs/config.yaml [-replay data/ticks.csv]
//	spreadd replay -config configs/config.yaml -ticks data/ticks.csv
//	spreadd validate -config configs/config.yaml
func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "spreadd",
		Usage: "spread arbitrage engine with paper execution",
		Commands: []*cli.Command{
			runCommand(),
			replayCommand(),
			validateCommand(),
		},
	}
}
