package main

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"centroid/internal/config"
	"centroid/internal/vectorstore"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "centroidctl",
	Short: "Operate a centroid personalization/search service",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config overlay (CENTROID_CONFIG_FILE env var also works)")
	rootCmd.AddCommand(siloCmd, serveCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(configFile)
}

// parseVectorDSN turns VectorConfig.DSN ("http://host:6334?api_key=...") into
// the Host/Port/APIKey/UseTLS fields vectorstore.Config expects; the rest of
// the codebase only ever passes a DSN string around, the way the teacher's
// loader does for Postgres.
func parseVectorDSN(dsn string) (vectorstore.Config, error) {
	if dsn == "" {
		return vectorstore.Config{}, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return vectorstore.Config{}, err
	}
	cfg := vectorstore.Config{
		Host:   u.Hostname(),
		UseTLS: u.Scheme == "https" || u.Scheme == "grpcs",
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			cfg.Port = n
		}
	}
	cfg.APIKey = u.Query().Get("api_key")
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
