// Command zipline is a small flag-based CLI exercising the library's
// reader and writer end to end, the way this repository's own cmd/
// tools exercise their core package.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zipline/zipline"
	"github.com/zipline/zipline/source"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = runList(log, os.Args[2:])
	case "extract":
		err = runExtract(log, os.Args[2:])
	case "create":
		err = runCreate(log, os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "zipline: unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: zipline <subcommand> [flags]

subcommands:
  list    -in <archive.zip>
  extract -in <archive.zip> -out <dir> [-password <pw>] [-name <entry>]
  create  -out <archive.zip> <file>...`)
}

func runList(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	in := fs.String("in", "", "path to archive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("list: -in is required")
	}

	src, err := source.OpenFile(*in)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	defer src.Close() //nolint:errcheck // best-effort close on CLI exit path

	r := zipline.NewReader(src)
	entries, err := r.Entries()
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	for _, e := range entries {
		kind := "file"
		if e.Directory {
			kind = "dir "
		}
		lock := " "
		if e.Encrypted {
			lock = "*"
		}
		fmt.Printf("%s %s%8d %8d  %s  %s\n", kind, lock, e.UncompressedSize, e.CompressedSize, e.ModTime.Format(time.RFC3339), e.Name)
	}
	log.Info("listed archive", "path", *in, "entries", len(entries))
	return nil
}

func runExtract(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	in := fs.String("in", "", "path to archive")
	out := fs.String("out", "", "destination directory")
	password := fs.String("password", "", "password for encrypted entries")
	name := fs.String("name", "", "extract only this entry (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("extract: -in and -out are required")
	}

	src, err := source.OpenFile(*in)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	defer src.Close() //nolint:errcheck // best-effort close on CLI exit path

	r := zipline.NewReader(src)
	entries, err := r.Entries()
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	var extractOpts []zipline.ExtractOption
	if *password != "" {
		extractOpts = append(extractOpts, zipline.WithPassword(*password))
	}

	count := 0
	for _, e := range entries {
		if *name != "" && e.Name != *name {
			continue
		}
		dest := filepath.Join(*out, filepath.FromSlash(e.Name))
		if e.Directory {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		f, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		err = r.Extract(e, f, extractOpts...)
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("extract %q: %w", e.Name, err)
		}
		if closeErr != nil {
			return fmt.Errorf("extract %q: %w", e.Name, closeErr)
		}
		count++
	}

	if *name != "" && count == 0 {
		return fmt.Errorf("extract: no entry named %q", *name)
	}
	log.Info("extracted archive", "path", *in, "dest", *out, "entries", count)
	return nil
}

func runCreate(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	out := fs.String("out", "", "path to the archive to create")
	level := fs.Int("level", 6, "deflate level, 0 for store")
	password := fs.String("password", "", "password to encrypt all entries with")
	base := fs.String("base", "", "base directory; entry names are relative to it (default: cwd)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" || fs.NArg() == 0 {
		return fmt.Errorf("create: -out and at least one input file are required")
	}

	baseDir := *base
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}
		baseDir = wd
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close() //nolint:errcheck // best-effort close on CLI exit path

	w := zipline.NewWriter(f)

	count := 0
	for _, path := range fs.Args() {
		if err := addPath(w, baseDir, path, *level, *password); err != nil {
			return fmt.Errorf("create: %w", err)
		}
		count++
	}

	if err := w.Close(""); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	log.Info("created archive", "path", *out, "inputs", count)
	return nil
}

// addPath adds path (file or directory, walked recursively) to w, naming
// entries relative to baseDir with forward slashes regardless of host OS.
func addPath(w *zipline.Writer, baseDir, path string, level int, password string) error {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(baseDir, path)
	}

	return filepath.Walk(full, func(walked string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(baseDir, walked)
		if err != nil {
			return err
		}
		name := strings.ReplaceAll(rel, string(filepath.Separator), "/")

		if info.IsDir() {
			return w.Add(name, nil, zipline.AddOptions{Directory: true, ModTime: info.ModTime()})
		}

		file, err := os.Open(walked)
		if err != nil {
			return err
		}
		defer file.Close() //nolint:errcheck // best-effort close while walking

		return w.Add(name, file, zipline.AddOptions{
			Level:      level,
			Password:   password,
			SourceSize: info.Size(),
			ModTime:    info.ModTime(),
		})
	})
}
