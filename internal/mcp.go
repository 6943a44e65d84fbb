package internal

import (
	"github.com/thefounder-seb/btmg/internal/mcpserver"
)

// ServeMCP runs the MCP stdio server over an already-built system.
func ServeMCP(cfg *Config, sys *System) error {
	srv := mcpserver.New(sys.Service, sys.Engine, sys.Scanner, cfg.Sync.Strategy())
	return srv.ServeStdio()
}
