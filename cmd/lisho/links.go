package main

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var addToken string

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a short link",
	Long: `Register a destination URL under a token. Without --token, the
token is the first eight hex characters of a fresh UUID, which is short
enough to type and random enough to not collide on a personal instance.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var rmCmd = &cobra.Command{
	Use:   "rm <token>",
	Short: "Remove a short link",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all short links",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	addCmd.Flags().StringVar(&addToken, "token", "", "token to register (default: generated)")
	rootCmd.AddCommand(addCmd, rmCmd, lsCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	dest, err := url.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parse destination: %w", err)
	}
	if dest.Scheme == "" || dest.Host == "" {
		return fmt.Errorf("destination must be an absolute URL, got %q", args[0])
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ed, closeStore, err := openEditor(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	token := addToken
	if token == "" {
		token = uuid.NewString()[:8]
	}

	if err := ed.Put(token, dest.String()); err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", token, dest.String())
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ed, closeStore, err := openEditor(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := ed.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ed, closeStore, err := openEditor(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	links, err := ed.Entries()
	if err != nil {
		return err
	}

	tokens := make([]string, 0, len(links))
	for token := range links {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, token := range tokens {
		fmt.Fprintf(tw, "%s\t%s\n", token, links[token])
	}
	return tw.Flush()
}
