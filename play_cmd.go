package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sadhana/recital/internal/content"
	"github.com/sadhana/recital/internal/probe"
	"github.com/sadhana/recital/playback"
	"github.com/sadhana/recital/ui"
)

var playCmd = &cobra.Command{
	Use:     "play <type/id | id>",
	Short:   "Open a prayer and sing or read it",
	Long:    paragraph(fmt.Sprintf("\n%s a content item from the library. Its recording is played when there is one; otherwise its text is read aloud line by line.", keyword("Open"))),
	Example: paragraph("recital play aarti/jagdish\nrecital play hanuman --preference read"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("play needs a terminal")
		}
		return play(cmd.Context(), args[0])
	},
}

func play(ctx context.Context, ref string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := content.Open(library)
	if err != nil {
		return fmt.Errorf("unable to open library: %w", err)
	}
	defer repo.Close() //nolint:errcheck

	rec, err := content.Find(ctx, repo, ref)
	if err != nil {
		return err
	}
	records, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("unable to list library: %w", err)
	}

	p, err := newPlayer(cfg, mute)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn("closing player", "err", err)
		}
	}()
	p.coord.SetQueue(content.Queue(records, rec.Type))

	policy, err := p.policy()
	if err != nil {
		return err
	}

	changes, stop := watchRecord(repo, rec, cfg.Stream.AssetsDir)
	defer stop()

	screen := ui.NewScreen(policy, probed(rec, cfg.Stream.AssetsDir), changes)
	defer screen.Release()

	restore := quietLog()
	defer restore()
	if _, err := ui.NewProgram(screen).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// watchRecord delivers refreshed versions of rec while its library file
// changes. Only the latest version is kept when the screen falls behind.
func watchRecord(repo content.Repository, rec content.Record, assetsDir string) (<-chan playback.Content, func()) {
	file, ok := repo.(*content.FileRepository)
	if !ok {
		return nil, func() {}
	}

	changes := make(chan playback.Content, 1)
	w, err := file.Watch(content.DefaultDebounce, func(records []content.Record) {
		for _, r := range records {
			if r.Type != rec.Type || r.ID != rec.ID {
				continue
			}
			c := probed(r, assetsDir)
			select {
			case <-changes:
			default:
			}
			changes <- c
			return
		}
		log.Warn("content removed from library", "content", rec.Ref())
	})
	if err != nil {
		log.Warn("not watching library", "err", err)
		return nil, func() {}
	}
	return changes, func() { _ = w.Close() }
}

// probed returns the content of r with its title and duration read from
// the local recording when the library leaves them out.
func probed(r content.Record, assetsDir string) playback.Content {
	c := r.Content()
	t, ok := r.Track()
	if !ok || !playback.Resolve(c.Fields).IsLocalFile {
		return c
	}
	if assetsDir != "" && !filepath.IsAbs(t.Locator) {
		if _, err := os.Stat(t.Locator); err != nil {
			t.Locator = filepath.Join(assetsDir, t.Locator)
		}
	}

	t = probe.Track(t)
	if c.Title == "" {
		c.Title = t.Title
	}
	if c.Subtitle == "" {
		c.Subtitle = t.Subtitle
	}
	if c.DurationMs == 0 {
		c.DurationMs = t.DurationMs
	}
	return c
}
