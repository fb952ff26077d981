package main

import (
	"github.com/sidkik/dfsync/cmd"
	"github.com/sidkik/dfsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
