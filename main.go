package main

import (
	"github.com/100monkeys-ai/monkey-troop/cmd/troop"
	_ "github.com/100monkeys-ai/monkey-troop/pkg/logger"
)

// Values for version are injected by the build.
var (
	VERSION = ""
)

func main() {
	troop.Execute(VERSION)
}
