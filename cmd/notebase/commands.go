package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ainotebook/notebase/api"
	"github.com/ainotebook/notebase/config"
	"github.com/ainotebook/notebase/database"
	"github.com/ainotebook/notebase/database/record"
	"github.com/ainotebook/notebase/info"
	"github.com/ainotebook/notebase/metrics"
	"github.com/ainotebook/notebase/notes"
	"github.com/ainotebook/notebase/run"
)

const maintenanceInterval = 10 * time.Minute

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid record id %q", arg)
	}
	return id, nil
}

// parseValue interprets a command line value as integer, float, bool or
// string, in that order.
func parseValue(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func parseData(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	data := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid data %q, expected key=value", pair)
		}
		data[key] = parseValue(value)
	}
	return data, nil
}

func (a *app) getRecord(ctx context.Context, arg string) (*record.Record, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, err
	}
	r, err := a.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("record %d not found", id)
	}
	return r, nil
}

func (a *app) addCmd() *cobra.Command {
	var data []string

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a record and print it with its new ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseData(data)
			if err != nil {
				return err
			}
			r := record.New(args[0], parsed)
			r.ID, err = a.store.Add(cmd.Context(), r)
			if err != nil {
				return err
			}
			return a.print(r)
		},
	}
	cmd.Flags().StringArrayVarP(&data, "data", "d", nil, "data attribute as key=value, may be repeated")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.getRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(r)
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print all records, or the records with the given name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				records []*record.Record
				err     error
			)
			if name != "" {
				records, err = a.store.GetAllByName(cmd.Context(), name)
			} else {
				records, err = a.store.GetAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			return a.print(records)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "only list records with this name")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var data []string

	cmd := &cobra.Command{
		Use:   "update ID NAME",
		Short: "Write a record with the given ID, replacing an existing one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			parsed, err := parseData(data)
			if err != nil {
				return err
			}
			r := record.New(args[1], parsed)
			r.ID = id
			if _, err := a.store.Update(cmd.Context(), r); err != nil {
				return err
			}
			return a.print(r)
		},
	}
	cmd.Flags().StringArrayVarP(&data, "data", "d", nil, "data attribute as key=value, may be repeated")
	return cmd
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set ID PATH VALUE",
		Short: "Set a single attribute of a record, eg. name or data.tags.0",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.getRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := r.SetAttribute(args[1], parseValue(args[2])); err != nil {
				return err
			}
			if _, err := a.store.Update(cmd.Context(), r); err != nil {
				return err
			}
			return a.print(r)
		},
	}
}

func (a *app) unsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset ID PATH",
		Short: "Remove a single attribute of a record, eg. data.image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.getRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := r.DeleteAttribute(args[1]); err != nil {
				return err
			}
			if _, err := a.store.Update(cmd.Context(), r); err != nil {
				return err
			}
			return a.print(r)
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.store.Delete(cmd.Context(), id)
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all records of the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.store.ClearAll(cmd.Context())
		},
	}
}

func (a *app) dropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "Delete the whole database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.store.DeleteDatabase(cmd.Context())
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the notes API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metrics.RegisterInfoMetric()
			metrics.RegisterLogMetrics()

			server := api.NewServer(notes.NewService(a.store))
			return run.Run(cmd.Context(), func(ctx context.Context) error {
				database.StartMaintainer(ctx, maintenanceInterval)
				return server.ListenAndServe(ctx, a.cfg.Listen)
			})
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Show or write the configuration",
		Annotations: map[string]string{configOnly: ""},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:         "show",
			Short:       "Print the effective configuration",
			Args:        cobra.NoArgs,
			Annotations: map[string]string{configOnly: ""},
			RunE: func(_ *cobra.Command, _ []string) error {
				return a.print(a.cfg)
			},
		},
		&cobra.Command{
			Use:         "write [PATH]",
			Short:       "Write the effective configuration to a file",
			Args:        cobra.MaximumNArgs(1),
			Annotations: map[string]string{configOnly: ""},
			RunE: func(cmd *cobra.Command, args []string) error {
				var path string
				if len(args) == 1 {
					path = args[0]
				}
				written, err := config.Write(a.cfg, path)
				if err != nil {
					return err
				}
				cmd.Printf("config written to %s\n", written)
				return nil
			},
		},
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: ""},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(info.FullVersion())
		},
	}
}
