package main

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/openpref/preflearn/internal/labelapi"
)

// #region labeler-cmd

func newLabelerCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "labeler",
		Short: "Serve the human labeling API and websocket feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			gin.SetMode(gin.ReleaseMode)
			r := gin.New()
			r.Use(gin.Recovery())
			srv := labelapi.NewServer()
			srv.Routes(r)

			slog.Info("labeling service listening", "addr", addr)
			return r.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8089", "listen address")
	return cmd
}

// #endregion labeler-cmd
