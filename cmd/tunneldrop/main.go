package main

import (
	"github.com/rs/zerolog"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/commands"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/logging"
)

func main() {
	logging.Init(zerolog.ErrorLevel)
	commands.Execute()
}
