// Package cli implements the casefile CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/rcliao/casefile/internal/attachment"
	"github.com/rcliao/casefile/internal/config"
	"github.com/rcliao/casefile/internal/imaging"
	"github.com/rcliao/casefile/internal/logging"
	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/session"
	"github.com/rcliao/casefile/internal/store"
)

var (
	dbPath         string
	configPath     string
	attachmentsDir string
	formatFlag     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "casefile",
	Short: "Keep track of cases",
	Long:  "A small case book: titled, dated cases with a solved flag, a suspect and a photo. SQLite-backed, single binary.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if formatFlag != "json" && formatFlag != "text" {
			return fmt.Errorf("unknown format %q (want json or text)", formatFlag)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $CASEFILE_DB or ~/.casefile/cases.db)")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $CASEFILE_CONFIG or ~/.casefile/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&attachmentsDir, "attachments", "", "Photo directory (default: next to the database)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// loadConfig resolves settings with command-line flags applied last. A
// database given by flag keeps its photos beside it unless a photo directory
// is configured.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		if cfg.AttachmentDir == config.Default().AttachmentDir {
			cfg.AttachmentDir = filepath.Join(filepath.Dir(dbPath), "photos")
		}
		cfg.DBPath = dbPath
	}
	if attachmentsDir != "" {
		cfg.AttachmentDir = attachmentsDir
	}
	return cfg, nil
}

// app is what a command needs once configuration is resolved.
type app struct {
	cfg   *config.Config
	log   logging.Logger
	store *store.SQLiteStore
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

	s, err := store.NewSQLiteStore(cfg.DBPath, store.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, log: log, store: s}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) layout() attachment.Layout {
	return attachment.NewLayout(a.cfg.AttachmentDir)
}

func (a *app) viewport() imaging.Bounds {
	return imaging.Bounds{Width: a.cfg.Viewport.Width, Height: a.cfg.Viewport.Height}
}

func (a *app) decoder() *imaging.Decoder {
	return imaging.NewDecoder(imaging.WithMaxPixels(a.cfg.MaxDecodePixels), imaging.WithLogger(a.log))
}

func (a *app) editSession(opts ...session.EditOption) *session.Edit {
	base := []session.EditOption{
		session.WithEditLogger(a.log),
		session.WithDecoder(a.decoder()),
		session.WithViewport(a.viewport()),
	}
	return session.NewEdit(a.store, a.layout(), append(base, opts...)...)
}

func parseID(s string) (ulid.ULID, error) {
	id, err := model.ParseID(s)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("bad id %q: %w", s, err)
	}
	return id, nil
}

func textFormat() bool {
	return formatFlag == "text"
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
