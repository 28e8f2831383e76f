package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/commons-systems/atelier/internal/drive"
	"github.com/commons-systems/atelier/internal/files"
)

// resolveFileID accepts either a bare file id or a Drive share link.
func resolveFileID(arg string) string {
	if id, ok := drive.FileIDFromURL(arg); ok {
		return id
	}
	return arg
}

func runList(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "list", "[-folder id]")
	folder := fs.String("folder", "", "Folder id (default: configured folder)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := env.signedInClient(ctx)
	if err != nil {
		return err
	}
	if *folder == "" {
		*folder = env.cfg.UploadFolderID()
	}

	remote, err := client.ListFolder(ctx, *folder)
	if err != nil {
		return err
	}
	if len(remote) == 0 {
		fmt.Fprintln(env.stdout, "No files")
		return nil
	}
	tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tCREATED")
	for _, f := range remote {
		size := files.FormatSize(f.Size)
		if f.IsFolder() {
			size = "folder"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.ID, f.Name, size, f.CreatedTime.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runDownload(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "download", "[-o path] [-force] <id-or-link>")
	out := fs.String("o", "", "Output path (default: the file id in the current directory)")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected one file id or link")
	}
	id := resolveFileID(fs.Arg(0))
	path := *out
	if path == "" {
		path = id
	}
	if !*force && fileExists(path) {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}

	client, err := env.signedInClient(ctx)
	if err != nil {
		return err
	}
	data, err := client.DownloadFile(ctx, id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(env.stdout, "Saved %s (%s)\n", path, files.FormatSize(int64(len(data))))
	return nil
}

func runDelete(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "delete", "<id-or-link>...")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("expected at least one file id or link")
	}
	client, err := env.signedInClient(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, arg := range fs.Args() {
		id := resolveFileID(arg)
		if err := client.DeleteFile(ctx, id); err != nil {
			color.New(color.FgRed).Fprintf(env.stderr, "✗ %s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Fprintf(env.stdout, "Deleted %s\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("failed to delete %d of %d files", failed, fs.NArg())
	}
	return nil
}

func runMkdir(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "mkdir", "[-parent id] <name>")
	parent := fs.String("parent", "", "Parent folder id (default: configured folder)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected a folder name")
	}
	client, err := env.signedInClient(ctx)
	if err != nil {
		return err
	}
	if *parent == "" {
		*parent = env.cfg.UploadFolderID()
	}
	id, err := client.CreateFolder(ctx, fs.Arg(0), *parent)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, id)
	return nil
}

func runQuota(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "quota", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := env.signedInClient(ctx)
	if err != nil {
		return err
	}
	q, err := client.StorageQuota(ctx)
	if err != nil {
		return err
	}
	if q.Limit <= 0 {
		fmt.Fprintf(env.stdout, "Used %s (unlimited)\n", files.FormatSize(q.Usage))
	} else {
		fmt.Fprintf(env.stdout, "Used %s of %s (%.1f%%)\n", files.FormatSize(q.Usage), files.FormatSize(q.Limit), q.UsedPercent())
	}
	fmt.Fprintf(env.stdout, "  Drive: %s\n  Trash: %s\n", files.FormatSize(q.UsageDrive), files.FormatSize(q.UsageTrash))
	if q.NearLimit() {
		color.New(color.FgYellow, color.Bold).Fprintln(env.stdout, "⚠ Storage is almost full; uploads may start failing")
	}
	return nil
}

func runSync(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "sync", "[-folder id] <dir>")
	folder := fs.String("folder", "", "Folder id (default: configured folder)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected a destination directory")
	}
	dir := fs.Arg(0)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	client, err := env.signedInClient(ctx)
	if err != nil {
		return err
	}
	if *folder == "" {
		*folder = env.cfg.UploadFolderID()
	}

	n, err := client.SyncFolder(ctx, *folder, func(f drive.RemoteFile, data []byte) error {
		path := filepath.Join(dir, filepath.Base(f.Name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		debugLog("synced %s -> %s", f.ID, path)
		return nil
	})
	fmt.Fprintf(env.stdout, "Synced %d files into %s\n", n, dir)
	return err
}
