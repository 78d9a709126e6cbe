package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/vaultlink/internal"
	"github.com/dgellow/vaultlink/internal/config"
	"github.com/dgellow/vaultlink/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.VersionPrefix,
		"server": map[string]any{
			"baseURL": "https://files.yourcompany.com",
			"addr":    ":8080",
			"name":    "vaultlink",
			"title":   "Private download",
		},
		"identity": map[string]any{
			"provider":    "cognito",
			"domain":      "auth.yourcompany.com",
			"clientId":    map[string]string{"$env": "COGNITO_CLIENT_ID"},
			"redirectUri": "https://files.yourcompany.com/",
			"scopes":      []string{"openid", "email", "profile"},
		},
		"federation": map[string]any{
			"region":         "eu-west-1",
			"identityPoolId": map[string]string{"$env": "IDENTITY_POOL_ID"},
			"loginProvider":  "cognito-idp.eu-west-1.amazonaws.com/eu-west-1_XXXXXXXXX",
		},
		"object": map[string]any{
			"bucket": "private-files",
			"key":    "cv.pdf",
			"region": "eu-west-1",
			"ttl":    "60s",
		},
		"session": map[string]any{
			"storage":       "bbolt",
			"path":          "vaultlink.db",
			"encryptionKey": map[string]string{"$env": "SESSION_ENCRYPTION_KEY"},
			"stateKey":      map[string]string{"$env": "SESSION_STATE_KEY"},
			"cookieMaxAge":  "720h",
			"rejectExpired": true,
		},
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

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case len(result.Errors) == 0:
		fmt.Println("Result: PASS (with warnings)")
	default:
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	logLevel := flag.String("log-level", "", "override LOG_LEVEL (error, warn, info, debug, trace)")
	flag.Parse()
	if *logLevel != "" {
		if err := log.SetLogLevel(*logLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
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

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting vaultlink", map[string]any{
		"version":   BuildVersion,
		"config":    *conf,
		"log_level": log.GetLogLevel(),
	})

	app, err := internal.New(context.Background(), cfg)
	if err != nil {
		log.LogError("Failed to build application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
