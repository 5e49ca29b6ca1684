package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/8w6s/profile-api/internal/profile"
	"github.com/8w6s/profile-api/internal/session"
)

var (
	serverURL       string
	authToken       string
	refreshInterval time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "profilectl",
		Short: "Command-line client for the profile server",
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Profile server base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Admin bearer token for write operations")
	rootCmd.PersistentFlags().DurationVar(&refreshInterval, "interval", 30*time.Second, "Auto refresh interval for watch")

	rootCmd.AddCommand(newGetCommand())
	rootCmd.AddCommand(newSetNameCommand())
	rootCmd.AddCommand(newResetCommand())
	rootCmd.AddCommand(newWatchCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSession() (*session.Session, error) {
	return session.New(session.Config{
		BaseURL:   serverURL,
		AuthToken: authToken,
	})
}

func printDocument(doc profile.Document) error {
	encoded, err := profile.EncodeDocument(doc)
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Fetch the current profile document",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientSession, err := newSession()
			if err != nil {
				return err
			}
			doc, err := clientSession.Load(cmd.Context())
			if err != nil {
				return err
			}
			return printDocument(doc)
		},
	}
}

func newSetNameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-name <name>",
		Short: "Update the display name and save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientSession, err := newSession()
			if err != nil {
				return err
			}
			if _, err := clientSession.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load before edit: %w", err)
			}
			clientSession.ApplyLocalEdit(func(doc *profile.Document) {
				doc.Name = args[0]
			})
			doc, err := clientSession.Save(cmd.Context())
			if err != nil {
				return err
			}
			return printDocument(doc)
		},
	}
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Replace the profile with the built-in default document",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientSession, err := newSession()
			if err != nil {
				return err
			}
			doc, err := clientSession.Reset(cmd.Context())
			if err != nil {
				return err
			}
			return printDocument(doc)
		},
	}
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the server and print stats whenever the document changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientSession, err := newSession()
			if err != nil {
				return err
			}
			watchCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			updates, cancel := clientSession.Subscribe()
			defer cancel()

			if _, err := clientSession.Load(watchCtx); err != nil {
				fmt.Fprintf(os.Stderr, "initial load failed: %v\n", err)
			}
			stopRefresh := clientSession.StartAutoRefresh(watchCtx, refreshInterval)
			defer stopRefresh()

			for {
				select {
				case <-watchCtx.Done():
					return nil
				case doc := <-updates:
					line, err := json.Marshal(doc.Stats)
					if err != nil {
						return err
					}
					fmt.Printf("%s %s\n", time.Now().Format(time.RFC3339), line)
				}
			}
		},
	}
}
