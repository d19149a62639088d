package main

import (
	"github.com/moorthiguru33/omegle-clone-sub000/cmd"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/logging"
)

func main() {
	logger := logging.Init()
	defer logger.Sync()

	cmd.Execute()
}
