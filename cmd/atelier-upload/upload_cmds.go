package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/commons-systems/atelier/internal/auth"
	"github.com/commons-systems/atelier/internal/compress"
	"github.com/commons-systems/atelier/internal/config"
	"github.com/commons-systems/atelier/internal/files"
	"github.com/commons-systems/atelier/internal/localstore"
	"github.com/commons-systems/atelier/internal/notify"
	"github.com/commons-systems/atelier/internal/panel"
	"github.com/commons-systems/atelier/internal/upload"
	"github.com/commons-systems/atelier/internal/watch"
)

type uploadFlags struct {
	order       string
	folder      string
	concurrency int
	panel       bool
	noCompress  bool
	verbose     bool
}

// newOrchestrator wires the orchestrator to Drive and the session. The caller closes it.
func newOrchestrator(ctx context.Context, env *environment, cfg config.Config, f uploadFlags, sink notify.Sink) (*upload.Orchestrator, error) {
	client, err := env.driveClient(ctx)
	if err != nil {
		return nil, err
	}

	ucfg := cfg.Upload()
	ucfg.CompressImages = !f.noCompress
	opts := []upload.Option{
		upload.WithConfig(ucfg),
		upload.WithCompressor(compress.New()),
		upload.WithSink(sink),
	}
	if f.folder != "" {
		opts = append(opts, upload.WithParentFolder(f.folder))
	}
	if f.concurrency > 0 {
		opts = append(opts, upload.WithConcurrency(f.concurrency))
	}
	return upload.New(client, env.session, opts...)
}

// attachmentsFrom records uploaded files against an order. Failed uploads are skipped.
func attachmentsFrom(orderID string, processed []upload.ProcessedFile) []localstore.Attachment {
	var out []localstore.Attachment
	for _, p := range processed {
		if p.RemoteURL == "" {
			continue
		}
		out = append(out, localstore.Attachment{
			ID:         p.FileID,
			OrderID:    orderID,
			Name:       p.Name,
			Size:       p.Size,
			MimeType:   p.MimeType,
			RemoteURL:  p.RemoteURL,
			UploadedAt: p.UploadedAt,
		})
	}
	return out
}

// saveAttachments returns an OnComplete callback storing the batch against orderID.
func saveAttachments(ctx context.Context, store *localstore.Store, orderID string, errCh chan<- error) func([]upload.ProcessedFile) {
	return func(processed []upload.ProcessedFile) {
		attachments := attachmentsFrom(orderID, processed)
		if len(attachments) == 0 {
			errCh <- nil
			return
		}
		_, err := store.AddAttachments(ctx, orderID, attachments)
		errCh <- err
	}
}

func runUpload(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "upload", "[flags] file...")
	var f uploadFlags
	fs.StringVar(&f.order, "order", "", "Order to attach the uploaded files to")
	fs.StringVar(&f.folder, "folder", "", "Destination folder id (default: configured folder)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "Concurrent uploads (1-10)")
	fs.BoolVar(&f.panel, "panel", false, "Show the interactive upload panel")
	fs.BoolVar(&f.noCompress, "no-compress", false, "Upload images without compressing them")
	fs.BoolVar(&f.verbose, "verbose", false, "Print every task transition")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("no files given")
	}

	cfg, err := env.validConfig()
	if err != nil {
		return err
	}

	batch := make([]files.File, 0, fs.NArg())
	for _, path := range fs.Args() {
		file, err := files.Load(path)
		if err != nil {
			return err
		}
		batch = append(batch, file)
	}

	if f.panel && !isTerminal(env.stdout) {
		log.Printf("WARNING: -panel needs a terminal; printing progress instead")
		f.panel = false
	}

	var sink notify.Sink = notify.NewConsole(env.stdout, f.verbose)
	var hub *notify.Broadcaster
	var sub *notify.Subscriber
	if f.panel {
		hub = notify.NewBroadcaster(256)
		sub = hub.Subscribe()
		sink = hub
	}

	orch, err := newOrchestrator(ctx, env, cfg, f, sink)
	if err != nil {
		return err
	}
	defer orch.Close()

	opts := upload.SubmitOptions{}
	if !f.panel && len(batch) == 1 && isTerminal(env.stderr) {
		opts.Progress = notify.NewBar(env.stderr, 40)
	}
	saved := make(chan error, 1)
	if f.order != "" {
		store, err := env.localStore(ctx)
		if err != nil {
			return err
		}
		opts.OnComplete = saveAttachments(ctx, store, f.order, saved)
	}

	failures, unsubscribe := signInFailures(env.session)
	defer unsubscribe()

	b, err := orch.Submit(batch, opts)
	if err != nil {
		return err
	}

	var waitErr error
	if f.panel && len(b.Tasks()) > 0 {
		if err := panel.Run(ctx, orch, sub, panel.WithExitOnSettle()); err != nil {
			return err
		}
		select {
		case <-b.Done():
		default:
			b.Cancel()
		}
		waitErr = b.Wait(ctx)
	} else {
		waitErr = awaitBatch(ctx, b, failures)
	}
	if hub != nil {
		hub.Unsubscribe(sub)
		hub.Close()
	}
	if errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, context.DeadlineExceeded) {
		return waitErr
	}

	if f.order != "" && len(b.Tasks()) > 0 {
		if err := <-saved; err != nil {
			return fmt.Errorf("uploaded but failed to record attachments: %w", err)
		}
	}
	if waitErr != nil {
		return waitErr
	}

	s := b.Summary()
	if f.panel {
		fmt.Fprintf(env.stdout, "%d of %d files uploaded\n", s.Completed, s.Total+s.Rejected)
	}
	if s.Failed > 0 || s.Rejected > 0 {
		return fmt.Errorf("%d failed, %d rejected", s.Failed, s.Rejected)
	}
	return nil
}

// signInFailures reports failed logins from the moment it is called, so a login started
// by Submit cannot be missed.
func signInFailures(session upload.Authenticator) (<-chan auth.Event, func()) {
	failures := make(chan auth.Event, 1)
	unsubscribe := session.Subscribe(auth.ListenerFunc(func(e auth.Event) {
		if e.Kind != auth.EventFailed {
			return
		}
		select {
		case failures <- e:
		default:
		}
	}))
	return failures, unsubscribe
}

// awaitBatch waits for b to settle. A failed sign-in leaves nothing to wait for in a
// one-shot upload, so what is left of the batch is cancelled and the failure returned.
func awaitBatch(ctx context.Context, b *upload.Batch, failures <-chan auth.Event) error {
	select {
	case <-b.Done():
		return b.Wait(ctx)
	case e := <-failures:
		b.Cancel()
		if err := b.Wait(ctx); err != nil {
			return err
		}
		return fmt.Errorf("sign-in failed, remaining uploads cancelled: %w", &auth.AuthError{Reason: e.Reason})
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runWatch(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "watch", "-dir path [flags]")
	var f uploadFlags
	var dir string
	fs.StringVar(&dir, "dir", "", "Directory to watch (default: drop_dir from the config file)")
	fs.StringVar(&f.order, "order", "", "Order to attach the uploaded files to")
	fs.StringVar(&f.folder, "folder", "", "Destination folder id (default: configured folder)")
	fs.BoolVar(&f.noCompress, "no-compress", false, "Upload images without compressing them")
	fs.BoolVar(&f.verbose, "verbose", false, "Print every task transition")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := env.validConfig()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.DropDir
	}
	if dir == "" {
		fs.Usage()
		return fmt.Errorf("-dir is required")
	}

	var store *localstore.Store
	if f.order != "" {
		if store, err = env.localStore(ctx); err != nil {
			return err
		}
	}

	orch, err := newOrchestrator(ctx, env, cfg, f, notify.NewConsole(env.stdout, f.verbose))
	if err != nil {
		return err
	}
	defer orch.Close()

	w, err := watch.New(dir)
	if err != nil {
		return err
	}
	defer w.Close()
	<-w.Ready()
	fmt.Fprintf(env.stdout, "Watching %s (Ctrl+C to stop)\n", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if ev.Err != nil {
				log.Printf("WARNING: watcher error: %v", ev.Err)
				continue
			}
			file, err := files.Load(ev.Path)
			if err != nil {
				log.Printf("WARNING: skipping %s: %v", ev.Path, err)
				continue
			}
			opts := upload.SubmitOptions{}
			if store != nil {
				orderID := f.order
				opts.OnComplete = func(processed []upload.ProcessedFile) {
					attachments := attachmentsFrom(orderID, processed)
					if len(attachments) == 0 {
						return
					}
					if _, err := store.AddAttachments(ctx, orderID, attachments); err != nil {
						log.Printf("ERROR: failed to record attachments for %s: %v", orderID, err)
					}
				}
			}
			if _, err := orch.Submit([]files.File{file}, opts); err != nil {
				log.Printf("WARNING: failed to queue %s: %v", ev.Path, err)
			}
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// fileExists is used by commands that refuse to overwrite local files.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
