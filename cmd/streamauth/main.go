package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgellow/streamauth/internal"
	"github.com/dgellow/streamauth/internal/config"
	"github.com/dgellow/streamauth/internal/log"
	"github.com/dgellow/streamauth/internal/redirect"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"clientId":              map[string]string{"$env": config.ClientIDEnv},
		"redirectUri":           config.DefaultRedirectURI,
		"authorizationEndpoint": config.DefaultAuthorizationEndpoint,
		"revocationEndpoint":    config.DefaultRevocationEndpoint,
		"apiBaseUrl":            config.DefaultAPIBaseURL,
		"scopes":                config.DefaultScopes,
		"redirectTimeout":       "5m",
		"httpTimeout":           config.DefaultHTTPTimeout.String(),
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (defaults plus CLIENT_ID when omitted)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config and exit")
	signOut := flag.Bool("sign-out", false, "sign out again after printing the profile")
	noBrowser := flag.Bool("no-browser", false, "print the authorization URL without launching a browser")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Println("Result: PASS")
		return
	}

	log.LogInfoWithFields("main", "Starting streamauth", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	var opts []internal.AppOption
	if *noBrowser {
		opts = append(opts, internal.WithOpener(redirect.PrintOpener(os.Stderr)))
	}

	app, err := internal.NewApp(cfg, opts...)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Stdout, *signOut); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Logf("Interrupted")
		} else {
			log.LogError("%v", err)
		}
		stop()
		os.Exit(1)
	}
}
