package main

import (
	"flag"
	"fmt"
	"os"

	"flowcore/internal/app"
	"flowcore/internal/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a flowcore config file or directory")
	flag.Parse()

	if configPath == "" {
		configPath = config.ConfigDirFromEnv("/etc/flowcore/config.yaml")
	}

	fmt.Printf("Using configuration: %s\n", configPath)

	application, err := app.New(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowcore: failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "flowcore: %v\n", err)
		os.Exit(1)
	}
}
