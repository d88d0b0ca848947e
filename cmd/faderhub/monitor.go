package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/faderhub/faderhub/internal/client"
)

var monitorURL string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Connect to a hub and print every broadcast on stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := client.New(client.Options{
			URL:     monitorURL,
			OnEvent: printEvent,
		})
		return c.Run(ctx)
	},
}

func printEvent(ev client.Event) {
	switch ev.Type {
	case "fullState":
		var sliders []struct {
			ID    int     `json:"id"`
			Label string  `json:"label"`
			Value float64 `json:"value"`
		}
		_ = json.Unmarshal(ev.Sliders, &sliders)
		fmt.Printf("fullState: %d channels, %d clients\n", len(sliders), ev.ConnectedClients)
		for _, s := range sliders {
			fmt.Printf("  %2d %-12s %.3f\n", s.ID, s.Label, s.Value)
		}
	case "sliderUpdate":
		fmt.Printf("slider %d → %.3f\n", ev.ID, ev.Value)
	case "configUpdate":
		fmt.Printf("config %d → %s\n", ev.ID, string(ev.Config))
	case "connectionStatus":
		fmt.Printf("clients: %d\n", ev.ConnectedClients)
	case "logUpdate":
		fmt.Printf("[%s] %s\n", ev.Timestamp, ev.Message)
	}
}

func init() {
	monitorCmd.Flags().StringVar(&monitorURL, "url", "ws://127.0.0.1:3000/ws", "hub WebSocket endpoint")
	rootCmd.AddCommand(monitorCmd)
}
