package main

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"
)

var probeAddr string

var probeCmd = &cobra.Command{
	Use:   "probe [token]",
	Short: "Send one raw request to a running server and print the reply",
	Long: `Dial the server, send a single hand-written GET, and dump the raw
response bytes. Handy for checking what actually goes over the wire without
curl deciding to be clever about redirects. Without a token the front page
is requested.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeAddr, "addr", "localhost:1337", "server address to dial")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	target := "/"
	if len(args) == 1 {
		target += args[0]
	}

	conn, err := net.DialTimeout("tcp", probeAddr, 2*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", probeAddr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\n\r\n", target); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(reply) == 0 {
		return fmt.Errorf("server hung up without a response")
	}

	fmt.Print(string(reply))
	return nil
}
