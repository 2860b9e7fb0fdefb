package main

import (
	"github.com/IELS2001/m16go/pkg/cli/sh"

	_ "github.com/IELS2001/m16go/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	sh.SetupFlags()
}

func main() {
	sh.Main()
}
