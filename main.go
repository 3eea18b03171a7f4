package main

import (
	"fmt"
	"os"

	"ecobridge/cmd/export"
	"ecobridge/cmd/extract"
	"ecobridge/cmd/fees"
	"ecobridge/cmd/root"
	"ecobridge/cmd/serve"
)

func init() {
	root.Init()

	root.Cmd.AddCommand(serve.Cmd)
	root.Cmd.AddCommand(extract.Cmd)
	root.Cmd.AddCommand(fees.Cmd)
	root.Cmd.AddCommand(export.Cmd)
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
