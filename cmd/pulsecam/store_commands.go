package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pulsecam/internal/clock"
	"pulsecam/internal/config"
	"pulsecam/internal/logging"
	"pulsecam/internal/objectstore"
	"pulsecam/internal/providers"
	"pulsecam/internal/retention"
)

func newStoreCommand(ctx *commandContext) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the configured object store",
	}
	storeCmd.AddCommand(newStoreListCommand(ctx))
	storeCmd.AddCommand(newStoreGetCommand(ctx))
	return storeCmd
}

func newStoreListCommand(ctx *commandContext) *cobra.Command {
	var bucket string
	var keep int

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored frames and mark the ones the next eviction pass removes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = cfg.Retention.RemoteCacheSize
			}
			return withStore(cmd, cfg, func(store objectstore.Store) error {
				target := objectstore.BucketOr(bucket, cfg.Store.Bucket)
				objects, err := store.List(cmd.Context(), target)
				if err != nil {
					return fmt.Errorf("list bucket %s: %w", target, err)
				}
				out := cmd.OutOrStdout()
				if len(objects) == 0 {
					fmt.Fprintf(out, "Bucket %s is empty\n", target)
					return nil
				}

				candidates := make([]retention.Candidate, len(objects))
				byID := make(map[string]objectstore.Object, len(objects))
				for i, obj := range objects {
					candidates[i] = retention.Candidate{ID: obj.ID, OrderingKey: obj.LastModified}
					byID[obj.ID] = obj
				}
				decision := retention.Plan(candidates, keep)

				rows := make([][]string, 0, len(objects))
				appendRows := func(list []retention.Candidate, action string) {
					for _, c := range list {
						obj := byID[c.ID]
						rows = append(rows, []string{
							obj.ID,
							obj.LastModified.Local().Format(time.DateTime),
							strconv.FormatInt(obj.Size, 10),
							action,
						})
					}
				}
				appendRows(decision.Evict, "evict")
				appendRows(decision.Keep, "keep")

				fmt.Fprintln(out, renderTable(
					[]string{"Name", "Modified", "Bytes", "Action"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintf(out, "%d objects in %s, keeping %d, %d to evict\n",
					len(objects), target, len(decision.Keep), len(decision.Evict))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket to list (defaults to store.bucket)")
	cmd.Flags().IntVar(&keep, "keep", 0, "Retention limit to evaluate (defaults to retention.remote_cache_size)")
	return cmd
}

func newStoreGetCommand(ctx *commandContext) *cobra.Command {
	var bucket string

	cmd := &cobra.Command{
		Use:   "get ID DEST",
		Short: "Download a stored frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			dest, err := config.ExpandPath(args[1])
			if err != nil {
				return fmt.Errorf("resolve destination: %w", err)
			}
			return withStore(cmd, cfg, func(store objectstore.Store) error {
				target := objectstore.BucketOr(bucket, cfg.Store.Bucket)
				if err := store.Download(cmd.Context(), id, dest, target); err != nil {
					return fmt.Errorf("download %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s to %s\n", id, filepath.Clean(dest))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket to read from (defaults to store.bucket)")
	return cmd
}

func withStore(cmd *cobra.Command, cfg *config.Config, fn func(objectstore.Store) error) error {
	store, closeStore, err := providers.NewStore(cmd.Context(), cfg, logging.NewNop(), clock.System())
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	return fn(store)
}
