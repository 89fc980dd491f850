package main

import (
	"os"

	"github.com/achilleasa/openmerge/cmd"
	"github.com/achilleasa/openmerge/log"
)

func main() {
	if err := cmd.NewApp().Run(os.Args); err != nil {
		log.New("openmerge").Error(err)
		os.Exit(1)
	}
}
