package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jojodicus/lisho/internal/slogutil"
	"github.com/Jojodicus/lisho/internal/store"
)

// starterConfig is what `lisho init` writes: the defaults, spelled out.
const starterConfig = `# lisho configuration. Every key is optional; these are the defaults.

listen: ":1337"

# one deadline per connection, reads and writes both
read_timeout: 500ms

# requests with a longer first line are answered with 414
max_request_line_bytes: 8192

# answer hits with "307 PERMANENT REDIRECT" so clients may cache them;
# leave off while links still change
allow_client_cache: false

store:
  # file, sqlite or redis
  backend: file
  # for file: format by extension (.json, .toml, .yaml); for sqlite: the db
  path: links.json
  # file backend only: use filesystem notifications instead of stat polling
  watch: false
  redis:
    addr: localhost:6379
    password: ""
    db: 0

log:
  # debug, info, warn or error
  level: info
  # text or json
  format: text

metrics:
  # serve Prometheus text on GET /metrics
  enabled: true
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter lisho.yaml and an empty link store",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = "lisho.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("wrote %s\n", path)

	// the default store is a file; create it empty so `serve` starts
	st, err := store.NewFile("links.json", slogutil.NewDiscardLogger())
	if err != nil {
		return err
	}
	if _, err := os.Stat("links.json"); err == nil {
		fmt.Println("links.json already exists, left alone")
		return nil
	}
	if err := st.EnsureExists(); err != nil {
		return fmt.Errorf("create links.json: %w", err)
	}
	fmt.Println("wrote links.json")

	return nil
}
