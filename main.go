package main

import (
	"fmt"
	"os"

	"github.com/jghoshh/habitual/backend"
	"github.com/jghoshh/habitual/frontend"
)

const usage = `usage: habitual [server|shell]

  server   serve the HTTP API (default), configured from backend/.env
  shell    open the interactive client, configured from frontend/.env`

func main() {
	mode := "server"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	switch mode {
	case "server":
		backend.RunBackend("backend/.env")
	case "shell":
		frontend.RunFrontend("frontend/.env")
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}
