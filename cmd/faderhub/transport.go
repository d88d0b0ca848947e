package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/faderhub/faderhub/internal/client"
)

var (
	transportURL   string
	transportValue int
)

var transportCmd = &cobra.Command{
	Use:   "transport <action>",
	Short: "Send a transport control (record, play, stop, ...) through a hub",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var (
			c    *client.Client
			once sync.Once
			done = make(chan string, 1)
		)
		c = client.New(client.Options{
			URL:         transportURL,
			MaxAttempts: 3,
			OnEvent: func(ev client.Event) {
				switch ev.Type {
				case "fullState":
					once.Do(func() {
						go func() { _ = c.SendTransport(action, transportValue) }()
					})
				case "logUpdate":
					select {
					case done <- ev.Message:
					default:
					}
				}
			},
		})
		go func() { _ = c.Run(ctx) }()

		select {
		case msg := <-done:
			fmt.Println(msg)
			return nil
		case <-ctx.Done():
			return errors.New("timed out waiting for the dispatch log entry")
		}
	},
}

func init() {
	transportCmd.Flags().StringVar(&transportURL, "url", "ws://127.0.0.1:3000/ws", "hub WebSocket endpoint")
	transportCmd.Flags().IntVar(&transportValue, "value", 127, "controller value to send (0-127)")
	rootCmd.AddCommand(transportCmd)
}
