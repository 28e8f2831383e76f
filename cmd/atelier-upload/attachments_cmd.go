package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/commons-systems/atelier/internal/files"
)

func runAttachments(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "attachments", "-order id [-remove file-id]")
	order := fs.String("order", "", "Order id")
	remove := fs.String("remove", "", "Unlink this attachment from the order")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *order == "" {
		fs.Usage()
		return fmt.Errorf("-order is required")
	}
	store, err := env.localStore(ctx)
	if err != nil {
		return err
	}

	if *remove != "" {
		ok, err := store.RemoveAttachment(ctx, *order, resolveFileID(*remove))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order %s has no attachment %s", *order, *remove)
		}
		fmt.Fprintf(env.stdout, "Removed %s from %s\n", *remove, *order)
		return nil
	}

	attachments, err := store.ListAttachments(ctx, *order)
	if err != nil {
		return err
	}
	if len(attachments) == 0 {
		fmt.Fprintf(env.stdout, "Order %s has no attachments\n", *order)
		return nil
	}
	tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tUPLOADED\tURL")
	for _, a := range attachments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Name, files.FormatSize(a.Size), a.UploadedAt.Format("2006-01-02 15:04"), a.RemoteURL)
	}
	return tw.Flush()
}
