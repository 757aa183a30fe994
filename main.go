// main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Bardaqus/signalsbot-sub001/cmd"
	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

const banner = `
  _________ .__                           .__             __________              __
 /   _____/ |__|   ____    ____   _____   |  |     ______ \______   \   ____    _/  |_
 \_____  \  |  |  / ___\  /    \  \__  \  |  |    /  ___/  |    |  _/  /  _ \   \   __\
 /        \ |  | / /_/  >|   |  \ / __ \_ |  |_   \___ \   |    |   \ (  <_> )   |  |
/_______  / |__| \___  / |___|  /(____  / |____/ /____  >  |______  /  \____/    |__|
        \/      /_____/       \/       \/             \/           \/

        Forex & Crypto Trading Signals -- Scheduled Delivery
[]=========================================================================[]
`

func main() {
	fmt.Println(banner)

	// Secrets live in .env during development; absence is fine in prod.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		utilities.LogWarnF("Could not load .env file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		utilities.LogWarnF("Received signal: %v, initiating graceful shutdown.", sig)
		cancel()
	}()

	cmd.Execute(ctx)

	utilities.LogInfoF("SignalsBot shutdown complete at %s", time.Now().Format(time.RFC1123))
}
