package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cognitedata/pygen-sub000/pkg/batch"
	"github.com/cognitedata/pygen-sub000/pkg/instances"
)

func instanceTypeFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "type",
		Usage: "Instance type: node or edge",
		Value: string(instances.TypeNode),
	}
}

func parseInstanceType(c *cli.Context) (instances.InstanceType, error) {
	t := instances.InstanceType(c.String("type"))
	if !t.Valid() {
		return "", cli.Exit(fmt.Sprintf("invalid --type %q: must be node or edge", t), exitFailure)
	}
	return t, nil
}

func listCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List instances as JSON lines",
		Flags: []cli.Flag{
			instanceTypeFlag(),
			&cli.StringFlag{
				Name:  "space",
				Usage: "Only list instances in this space",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of instances to return (0 = no limit)",
				Value: 0,
			},
		},
		Action: func(c *cli.Context) error {
			instanceType, err := parseInstanceType(c)
			if err != nil {
				return err
			}
			limit := c.Int("limit")
			if limit < 0 {
				return cli.Exit("--limit must be >= 0", exitFailure)
			}

			req := instances.ListRequest{InstanceType: instanceType}
			if space := c.String("space"); space != "" {
				filter, err := json.Marshal(map[string]any{
					"equals": map[string]any{
						"property": []string{string(instanceType), "space"},
						"value":    space,
					},
				})
				if err != nil {
					return err
				}
				req.Filter = filter
			}

			listed := e.api.IterateAll(c.Context, req)
			if limit > 0 {
				listed = e.api.Iterate(c.Context, req, limit)
			}

			enc := json.NewEncoder(c.App.Writer)
			count := 0
			for inst, err := range listed {
				if err != nil {
					return cli.Exit(fmt.Sprintf("list failed after %d instances: %v", count, err), exitFailure)
				}
				if err := enc.Encode(inst); err != nil {
					return err
				}
				count++
			}

			e.logger.Info().Int("instances", count).Msg("List complete")
			return nil
		},
	}
}

func upsertCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "upsert",
		Usage:     "Create or update instances from a JSON array",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "replace",
				Usage: "Replace all properties instead of patching them",
			},
			&cli.BoolFlag{
				Name:  "skip-on-version-conflict",
				Usage: "Skip items whose existingVersion does not match",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("upsert expects exactly one file argument (use - for stdin)", exitFailure)
			}

			var items []instances.InstanceApply
			if err := readJSON(c.Args().First(), c.App.Reader, &items); err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}

			result, err := e.api.Upsert(c.Context, items, instances.UpsertOptions{
				Replace:               c.Bool("replace"),
				SkipOnVersionConflict: c.Bool("skip-on-version-conflict"),
			})
			return report(c, "upsert", len(items), result, err)
		},
	}
}

func deleteCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete instances by external id",
		ArgsUsage: "<externalId>...",
		Flags: []cli.Flag{
			instanceTypeFlag(),
			&cli.StringFlag{
				Name:     "space",
				Usage:    "Space of the instances",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			instanceType, err := parseInstanceType(c)
			if err != nil {
				return err
			}
			if c.NArg() == 0 {
				return cli.Exit("delete expects at least one external id", exitFailure)
			}

			ids := make([]instances.InstanceID, 0, c.NArg())
			for _, xid := range c.Args().Slice() {
				ids = append(ids, instances.InstanceID{
					InstanceType: instanceType,
					Space:        c.String("space"),
					ExternalID:   xid,
				})
			}

			result, err := e.api.Delete(c.Context, ids)
			return report(c, "delete", len(ids), result, err)
		},
	}
}

func serveCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve /metrics and /health until interrupted",
		Action: func(c *cli.Context) error {
			if e.metricsServer == nil {
				return cli.Exit("serve needs --metrics-addr or metrics.addr in the config", exitFailure)
			}
			<-c.Context.Done()
			return nil
		},
	}
}

// summary is printed after a batch command.
type summary struct {
	Operation       string   `json:"operation"`
	Requested       int      `json:"requested"`
	Written         int      `json:"written"`
	Deleted         int      `json:"deleted"`
	FailedResponses int      `json:"failedResponses"`
	FailedRequests  int      `json:"failedRequests"`
	Errors          []string `json:"errors,omitempty"`
}

// report prints a summary and maps partial failures to exitPartialFailure.
func report(c *cli.Context, operation string, requested int, result instances.WriteResult, err error) error {
	s := summary{
		Operation: operation,
		Requested: requested,
		Written:   len(result.Items),
		Deleted:   len(result.DeletedIDs),
	}

	var partial *batch.PartialFailureError[instances.InstanceResult, instances.InstanceID]
	switch {
	case err == nil:
	case errors.As(err, &partial):
		s.FailedResponses = len(partial.FailedResponses)
		s.FailedRequests = len(partial.FailedRequests)
		for _, f := range partial.FailedResponses {
			s.Errors = append(s.Errors, f.Error.Error())
		}
		for _, f := range partial.FailedRequests {
			s.Errors = append(s.Errors, f.Message)
		}
	default:
		return cli.Exit(fmt.Sprintf("%s failed: %v", operation, err), exitFailure)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(s); encErr != nil {
		return encErr
	}

	if partial != nil {
		if s.Written+s.Deleted == 0 {
			return cli.Exit(fmt.Sprintf("%s failed: %v", operation, err), exitFailure)
		}
		return cli.Exit(fmt.Sprintf("%s partially failed: %v", operation, err), exitPartialFailure)
	}
	return nil
}

func readJSON(path string, stdin io.Reader, v any) error {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
