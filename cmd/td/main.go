// Command td is a terminal workspace for project-board tasks: it syncs
// issues, pull requests, and drafts from the configured boards into a local
// SQLite database and serves an interactive TUI over them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trackdeck/trackdeck/internal/config"
	"github.com/trackdeck/trackdeck/internal/debug"
	"github.com/trackdeck/trackdeck/internal/edit"
	"github.com/trackdeck/trackdeck/internal/github"
	"github.com/trackdeck/trackdeck/internal/store"
	enginepkg "github.com/trackdeck/trackdeck/internal/sync"
	"github.com/trackdeck/trackdeck/internal/telemetry"
	"github.com/trackdeck/trackdeck/internal/types"
	"github.com/trackdeck/trackdeck/internal/ui"
)

var version = "dev"

// Exit codes.
const (
	exitOK            = 0
	exitAuthMissing   = 1
	exitConfigInvalid = 2
)

// exitError carries a process exit code up to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

var (
	configPath string
	dbPath     string
	discover   bool
	noUI       bool
	verbose    bool
)

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".trackdeck.db"
	}
	return filepath.Join(home, ".trackdeck.db")
}

// resolveToken finds the API token: GITHUB_TOKEN wins, then TOKEN from the
// environment or a .env file in the working directory.
func resolveToken() string {
	if t := os.Getenv("GITHUB_TOKEN"); t != "" {
		return t
	}
	if t := os.Getenv("TOKEN"); t != "" {
		return t
	}
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return ""
	}
	return v.GetString("TOKEN")
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "td",
		Short:         "Terminal workspace for project-board tasks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML configuration (required)")
	cmd.Flags().StringVar(&dbPath, "db", defaultDBPath(), "path to the local database")
	cmd.Flags().BoolVar(&discover, "discover", false, "list open projects per configured owner and exit")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "sync once, print a summary, and exit")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	debug.SetVerbose(verbose)

	ctx := cmd.Context()
	if err := telemetry.Init(ctx, "td", version); err != nil {
		debug.Logf("td: telemetry init failed: %v", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		telemetry.Shutdown(shCtx)
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitError{code: exitConfigInvalid, err: err}
	}

	token := resolveToken()
	if token == "" && os.Getenv("MOCK_FETCH") != "1" {
		return &exitError{code: exitAuthMissing,
			err: errors.New("no API token: set GITHUB_TOKEN or TOKEN (env or .env)")}
	}
	client := github.NewClient(token)

	if discover {
		return runDiscover(ctx, client, cfg)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = st.Close() }()

	engine := enginepkg.NewEngine(client, enginepkg.NewDiscoveryCache(enginepkg.DefaultCachePath()))
	coord := edit.New(st, client, cfg.User)

	if noUI {
		return runOnce(ctx, engine, cfg, st)
	}

	// The TUI owns the terminal from here on; debug output moves to a file.
	debug.LogToFile(filepath.Join(filepath.Dir(dbPath), "td-debug.log"))

	model := ui.New(st, engine, coord, cfg, ui.DefaultStatePath())
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("UI error: %w", err)
	}
	return nil
}

// runDiscover prints every open project per configured owner.
func runDiscover(ctx context.Context, client *github.Client, cfg *config.Config) error {
	bold := color.New(color.Bold)
	for _, src := range cfg.Projects {
		bold.Printf("%s/%s\n", src.OwnerType, src.Owner)
		refs, err := client.DiscoverOpenProjects(ctx, src.OwnerType, src.Owner)
		if err != nil {
			color.Red("  discovery failed: %v", err)
			continue
		}
		if len(refs) == 0 {
			color.Yellow("  no open projects")
			continue
		}
		for _, ref := range refs {
			fmt.Printf("  #%-4d %s\n", ref.Number, ref.Title)
		}
	}
	return nil
}

// runOnce performs a single sync and prints a colored summary.
func runOnce(ctx context.Context, engine *enginepkg.Engine, cfg *config.Config, st *store.Store) error {
	result, err := engine.Fetch(ctx, cfg, false, st, func(done, total int, status string) {
		debug.Logf("td: sync %d/%d %s", done, total, status)
	})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if result.Partial {
		color.Yellow("%s", result.Message)
	} else {
		color.Green("%s", result.Message)
	}
	printSummary(result.Rows)
	return nil
}

func printSummary(rows []types.TaskRow) {
	byProject := map[string][]types.TaskRow{}
	var order []string
	for _, row := range rows {
		if row.Placeholder() {
			continue
		}
		if _, ok := byProject[row.ProjectTitle]; !ok {
			order = append(order, row.ProjectTitle)
		}
		byProject[row.ProjectTitle] = append(byProject[row.ProjectTitle], row)
	}

	bold := color.New(color.Bold)
	dateC := color.New(color.FgCyan)
	doneC := color.New(color.FgHiBlack)
	for _, title := range order {
		bold.Printf("\n%s\n", title)
		for _, row := range byProject[title] {
			date := row.StartDate
			if date == "" {
				date = "          "
			}
			line := fmt.Sprintf("  %s  %-50s %s", dateC.Sprint(date), row.Title, row.Status)
			if row.IsDone {
				doneC.Println(line)
			} else {
				fmt.Println(line)
			}
		}
	}
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			color.Red("td: %v", ee.err)
			os.Exit(ee.code)
		}
		color.Red("td: %v", err)
		os.Exit(1)
	}
	os.Exit(exitOK)
}
