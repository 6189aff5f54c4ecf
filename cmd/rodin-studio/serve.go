package main

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/rodin-studio/internal/config"
	"github.com/fpang/rodin-studio/internal/httpclient"
	"github.com/fpang/rodin-studio/internal/rodin"
	"github.com/fpang/rodin-studio/internal/server"
)

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP gateway for the browser front end",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "Listen address (default from RODIN_LISTEN_ADDR or :8090)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if listenFlag != "" {
		cfg.ListenAddr = listenFlag
	}

	client := rodin.NewClient(cfg.BaseURL, cfg.APIKey, httpclient.New(httpclient.Options{Timeout: cfg.HTTPTimeout}))
	gateway := server.New(cfg, client)

	log.Info().Str("addr", cfg.ListenAddr).Msg("Gateway listening")
	return http.ListenAndServe(cfg.ListenAddr, gateway.Router())
}
