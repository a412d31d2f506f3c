package frontend

import (
	"os"

	"github.com/jghoshh/habitual/frontend/client"
	"github.com/jghoshh/habitual/frontend/cmd"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// RunFrontend starts the interactive shell against SERVER_URL. DEV_SIGNING_KEY
// enables local sign in with self-minted tokens.
func RunFrontend(envFile string) {
	if err := godotenv.Load(envFile); err != nil {
		logrus.WithError(err).Debug("no env file loaded")
	}

	serverURL := os.Getenv("SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	client.InitClient(serverURL, os.Getenv("AUTH_TOKEN"))
	cmd.InitShell(os.Getenv("DEV_SIGNING_KEY"))
	cmd.Execute()
}
