package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/faderhub/faderhub/internal/client"
)

var setURL string

var setCmd = &cobra.Command{
	Use:   "set <channel-id> <value>",
	Short: "Push one value change to a hub and wait for the echo",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrapf(err, "parsing channel id %q", args[0])
		}
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return errors.Wrapf(err, "parsing value %q", args[1])
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var (
			c    *client.Client
			once sync.Once
			done = make(chan float64, 1)
		)
		c = client.New(client.Options{
			URL:         setURL,
			MaxAttempts: 3,
			OnEvent: func(ev client.Event) {
				switch ev.Type {
				case "fullState":
					once.Do(func() {
						go func() { _ = c.SetValue(id, value) }()
					})
				case "sliderUpdate":
					if ev.ID == id {
						select {
						case done <- ev.Value:
						default:
						}
					}
				}
			},
		})
		go func() { _ = c.Run(ctx) }()

		select {
		case stored := <-done:
			fmt.Printf("channel %d → %.3f\n", id, stored)
			return nil
		case <-ctx.Done():
			return errors.New("timed out waiting for the hub's echo")
		}
	},
}

func init() {
	setCmd.Flags().StringVar(&setURL, "url", "ws://127.0.0.1:3000/ws", "hub WebSocket endpoint")
	rootCmd.AddCommand(setCmd)
}
