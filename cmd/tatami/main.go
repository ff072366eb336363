package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tatami-reader/tatami/internal/config"
	"github.com/tatami-reader/tatami/internal/document"
	applog "github.com/tatami-reader/tatami/internal/log"
	"github.com/tatami-reader/tatami/internal/lookup"
	"github.com/tatami-reader/tatami/internal/progress"
	"github.com/tatami-reader/tatami/internal/ui"
)

func main() {
	fresh := flag.Bool("fresh", false, "Open the book from the start, discarding the saved position")
	listRecent := flag.Bool("list", false, "Print recently read books and exit")
	showHelp := flag.Bool("help", false, "Show help message")
	flag.BoolVar(showHelp, "h", false, "Show help (shorthand)")

	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})

	store, writer := openStore()
	if store != nil {
		defer store.Close()
	}
	if writer != nil {
		defer writer.Close()
	}

	if *listRecent {
		if err := printRecent(store); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	opts := ui.Options{
		Store:  store,
		Writer: writer,
		Dict:   lookup.Echo{},
		Fresh:  *fresh,
	}

	if flag.NArg() > 0 {
		src, err := document.OpenEPUB(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", flag.Arg(0), err)
			os.Exit(1)
		}
		defer src.Close()
		opts.Source = src
	}

	app := ui.NewApp(cfg, opts)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the progress database. Persistence failures are not
// fatal; the reader runs without saving.
func openStore() (*progress.Store, *progress.Writer) {
	path, err := progress.DefaultPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: progress disabled: %v\n", err)
		return nil, nil
	}
	store, err := progress.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: progress disabled: %v\n", err)
		return nil, nil
	}
	return store, progress.NewWriter(store, 0)
}

func printRecent(store *progress.Store) error {
	if store == nil {
		return fmt.Errorf("no progress store available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	books, err := store.Recent(ctx, 20)
	if err != nil {
		return err
	}
	if len(books) == 0 {
		fmt.Println("No books yet.")
		return nil
	}
	for _, b := range books {
		fmt.Printf("%5.1f%%  %s\n        %s\n", b.Progress, b.Title, b.Path)
	}
	return nil
}

func printUsage() {
	fmt.Println("tatami - Terminal EPUB reader")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tatami                 Open the shelf of recent books")
	fmt.Println("  tatami <book.epub>     Open a book, resuming where you left off")
	fmt.Println("  tatami -fresh <book>   Open a book from the start")
	fmt.Println("  tatami -list           Print recently read books")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -fresh       Discard the saved position for the opened book")
	fmt.Println("  -list        Print recently read books and exit")
	fmt.Println("  -h, --help   Show this help message")
	fmt.Println()
	fmt.Println("Config: ~/.config/tatami/config.yaml")
}
