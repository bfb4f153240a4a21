package main

import (
	"github.com/BioHazard786/peercall/cmd"
	"github.com/BioHazard786/peercall/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
