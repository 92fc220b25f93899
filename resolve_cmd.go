package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"

	"github.com/sadhana/recital/internal/content"
	"github.com/sadhana/recital/internal/probe"
	"github.com/sadhana/recital/playback"
	"github.com/sadhana/recital/playback/lines"
)

var resolveCmd = &cobra.Command{
	Use:     "resolve [type/id | id]",
	Short:   "Show which audio source each prayer would use",
	Long:    paragraph(fmt.Sprintf("\n%s the audio source of one content item, or of the whole library, and whether it would be sung or read.", keyword("Resolve"))),
	Example: paragraph("recital resolve\nrecital resolve aarti/jagdish --preference read"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pref, err := playback.ParsePreference(cfg.Preference)
		if err != nil {
			return err
		}

		repo, err := content.Open(library)
		if err != nil {
			return fmt.Errorf("unable to open library: %w", err)
		}
		defer repo.Close() //nolint:errcheck

		var records []content.Record
		if len(args) == 1 {
			rec, err := content.Find(cmd.Context(), repo, args[0])
			if err != nil {
				return err
			}
			records = []content.Record{rec}
		} else if records, err = repo.List(cmd.Context()); err != nil {
			return fmt.Errorf("unable to list library: %w", err)
		}

		r := resolver{w: cmd.OutOrStdout(), pref: pref, assetsDir: cfg.Stream.AssetsDir, width: width}
		for i, rec := range records {
			if i > 0 {
				fmt.Fprintln(r.w)
			}
			r.describe(rec)
		}
		return nil
	},
}

type resolver struct {
	w         io.Writer
	pref      playback.Preference
	assetsDir string
	width     int
}

// describe prints the resolution of one record.
func (r resolver) describe(rec content.Record) {
	src := playback.Resolve(rec.AudioFields())
	target := playback.ResolveTarget(r.pref, src)

	title := rec.Title
	if title == "" {
		title = muted("(untitled)")
	}
	fmt.Fprintln(r.w, r.fit(keyword(rec.Ref())+"  "+title))
	r.field("source", src.DisplayLabel)
	if src.ResolvedLocator != "" {
		r.field("locator", r.fit(src.ResolvedLocator))
	}
	r.field("target", target.String())

	if src.IsLocalFile {
		if info, err := probe.File(r.localPath(src.ResolvedLocator)); err != nil {
			r.field("file", muted("missing"))
		} else {
			file := humanize.Bytes(uint64(info.Size)) //nolint:gosec
			if info.Duration > 0 {
				file += ", " + playback.FormatMs(info.Duration.Milliseconds())
			}
			r.field("file", file)
		}
	}
	if n := len(lines.Split(rec.Text)); n > 0 {
		r.field("lines", humanize.Comma(int64(n)))
	}
}

func (r resolver) field(name, value string) {
	fmt.Fprintf(r.w, "  %s %s\n", muted(fmt.Sprintf("%-8s", name)), value)
}

func (r resolver) fit(s string) string {
	if r.width <= 0 {
		return s
	}
	return truncate.StringWithTail(s, uint(max(r.width-11, 10)), "…") //nolint:gosec
}

func (r resolver) localPath(locator string) string {
	path := strings.TrimPrefix(locator, "file://")
	if r.assetsDir == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err != nil {
		return filepath.Join(r.assetsDir, path)
	}
	return path
}
