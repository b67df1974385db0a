package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/sidenote/internal"
	"github.com/starford/sidenote/internal/picker"
	pkgconfig "github.com/starford/sidenote/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// options builds the application options shared by all commands. Only serve
// keeps logs on stdout.
func options(cmd *cli.Command, logToStdout bool) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithWorkspace(cmd.String("workspace")),
	}
	if !logToStdout {
		opts = append(opts, internal.WithLogOutput(os.Stderr))
	}
	return opts, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, true)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, false)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func view(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("view: document path is required")
	}
	opts, err := options(cmd, false)
	if err != nil {
		return err
	}
	return internal.View(ctx, path, internal.ViewOptions{
		Width: int(cmd.Int("width")),
		Style: cmd.String("style"),
		Raw:   cmd.Bool("raw"),
	}, opts...)
}

func annotateAdd(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, false)
	if err != nil {
		return err
	}
	target := internal.AnnotateTarget{
		Selection:  cmd.String("selection"),
		Occurrence: int(cmd.Int("occurrence")),
		Start:      int(cmd.Int("start")),
		End:        int(cmd.Int("end")),
	}
	if target.Selection == "" && target.End <= target.Start {
		return errors.New("annotate add: --selection or --start/--end is required")
	}
	return internal.AddAnnotation(ctx, cmd.String("file"), target, cmd.String("comment"), opts...)
}

func annotateUpdate(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, false)
	if err != nil {
		return err
	}
	return internal.UpdateAnnotation(ctx, cmd.String("file"), cmd.String("id"), cmd.String("comment"), opts...)
}

func annotateRemove(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, false)
	if err != nil {
		return err
	}
	return internal.RemoveAnnotation(ctx, cmd.String("file"), cmd.String("id"), opts...)
}

func annotateList(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, false)
	if err != nil {
		return err
	}
	return internal.ListAnnotations(ctx, cmd.String("file"), opts...)
}

func pick(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, false)
	if err != nil {
		return err
	}
	err = internal.Pick(ctx, cmd.Args().First(), opts...)
	if errors.Is(err, picker.ErrCancelled) {
		return nil
	}
	return err
}

func listRecent(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, false)
	if err != nil {
		return err
	}
	return internal.ListRecent(ctx, opts...)
}

func main() {
	fileFlag := &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "Document path relative to the workspace",
		Required: true,
	}
	idFlag := &cli.StringFlag{
		Name:     "id",
		Usage:    "Annotation id",
		Required: true,
	}

	cmd := &cli.Command{
		Name:  "sidenote",
		Usage: "Markdown editor with inline annotations, autosave and live reload",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Usage:   "Workspace folder, overrides workspace.root",
				Sources: cli.EnvVars("SIDENOTE_WORKSPACE"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live events, file watching and autosave",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve annotation tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:      "view",
				Usage:     "Render a document with its annotations",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "width", Usage: "Wrap width", Value: 80},
					&cli.StringFlag{Name: "style", Usage: "glamour style (dark, light, notty; empty for auto)", Value: "dark"},
					&cli.BoolFlag{Name: "raw", Usage: "Print the file including annotation markers"},
				},
				Action: view,
			},
			{
				Name:  "annotate",
				Usage: "Manage annotations from the shell",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Annotate text in a document",
						Flags: []cli.Flag{
							fileFlag,
							&cli.StringFlag{Name: "comment", Aliases: []string{"m"}, Usage: "Comment text"},
							&cli.StringFlag{Name: "selection", Aliases: []string{"s"}, Usage: "Literal text to annotate"},
							&cli.IntFlag{Name: "occurrence", Usage: "Which occurrence of the selection", Value: 1},
							&cli.IntFlag{Name: "start", Usage: "Start byte offset when no selection is given"},
							&cli.IntFlag{Name: "end", Usage: "End byte offset when no selection is given"},
						},
						Action: annotateAdd,
					},
					{
						Name:  "update",
						Usage: "Replace an annotation comment",
						Flags: []cli.Flag{
							fileFlag,
							idFlag,
							&cli.StringFlag{Name: "comment", Aliases: []string{"m"}, Usage: "New comment text"},
						},
						Action: annotateUpdate,
					},
					{
						Name:    "rm",
						Aliases: []string{"remove"},
						Usage:   "Remove an annotation",
						Flags:   []cli.Flag{fileFlag, idFlag},
						Action:  annotateRemove,
					},
					{
						Name:   "list",
						Usage:  "List annotations with their anchor status",
						Flags:  []cli.Flag{fileFlag},
						Action: annotateList,
					},
				},
			},
			{
				Name:      "pick",
				Usage:     "Choose a workspace folder interactively",
				ArgsUsage: "[start-dir]",
				Action:    pick,
			},
			{
				Name:   "recent",
				Usage:  "List recently used workspaces",
				Action: listRecent,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
