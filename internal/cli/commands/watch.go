package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/pine/internal/session"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>",
		Short: "Rebuild an expression file on every save",
		Long: `Watch a file holding an expression. Every save replaces the session
expression; once the build settles the SQL and the graph summary are printed.
Stop with Ctrl+C.`,
		Example: `  pine watch query.pine
  pine watch query.pine -o json`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot watch %s: %w", args[0], err)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := cmdCtx.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	r := cmdCtx.Renderer
	r.Muted(fmt.Sprintf("Watching %s (Ctrl+C to stop)", path))

	return watchFile(ctx, path, s, cmdCtx.Logger, func(st session.State) {
		_ = renderBuild(r, st)
		r.Muted(fmt.Sprintf("%d tables, %d joins, %d suggestions",
			countNodes(st, false), len(st.Graph.Edges), countNodes(st, true)))
		r.Println("")
	})
}

func countNodes(st session.State, suggested bool) int {
	n := 0
	for _, node := range st.Graph.Nodes {
		if node.Suggested() == suggested {
			n++
		}
	}
	return n
}

// watchFile feeds the contents of path into s on every write and calls
// onSettled once per applied build. The parent directory is watched so
// editors that save by renaming are picked up.
func watchFile(ctx context.Context, path string, s *session.Session, logger *slog.Logger, onSettled func(session.State)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	var (
		mu      sync.Mutex
		printed uint64
		wg      sync.WaitGroup
	)
	defer wg.Wait()

	load := func() {
		b, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read expression file", "file", path, "error", err)
			return
		}
		if err := s.SetExpression(strings.TrimSpace(string(b))); err != nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.WaitIdle(ctx); err != nil {
				return
			}
			st := s.Snapshot()
			mu.Lock()
			defer mu.Unlock()
			// Concurrent waiters wake together; report each state once.
			if st.Revision <= printed {
				return
			}
			printed = st.Revision
			onSettled(st)
		}()
	}

	load()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug("expression file changed", "file", event.Name, "op", event.Op.String())
			load()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
