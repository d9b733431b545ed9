package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-task-port/codec"
	"github.com/Swind/go-task-port/core"
	"github.com/Swind/go-task-port/transport/websocket"
)

func SendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a JSON task batch and print the results",
		ArgsUsage: "<batch.json | ->",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Value: "ws://localhost:8080/ws",
				Usage: "WebSocket endpoint of a taskport server",
			},
			&cli.StringFlag{
				Name:  "codec",
				Value: codec.NameJSON,
				Usage: "Wire codec: json, cbor or msgpack",
			},
			&cli.BoolFlag{
				Name:  "abort-on-missing",
				Value: true,
				Usage: "Stop waiting after a missing_function result, matching a server using the abort_batch policy",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "Give up when results are still missing after this long",
			},
		},

		Action: SendAction,
	}
}

func SendAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one batch file (or - for stdin) is required", 1)
	}

	batch, err := readBatch(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to read batch: %v", err), 1)
	}
	if len(batch) == 0 {
		return cli.Exit("batch is empty", 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	client, err := websocket.Dial(ctx, c.String("url"), codec.ByName(c.String("codec")))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to connect: %v", err), 1)
	}
	defer client.Close()

	if err := client.Send(batch); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to send: %v", err), 1)
	}

	results, err := awaitResults(ctx, client, batch, c.Bool("abort-on-missing"))
	enc := json.NewEncoder(c.App.Writer)
	for _, r := range results {
		_ = enc.Encode(r)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	return nil
}

// readBatch decodes a JSON task batch from path or stdin. Missing attempt
// IDs are generated once per batch; missing task IDs are the index.
func readBatch(path string) (core.TaskBatch, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var batch core.TaskBatch
	if err := json.NewDecoder(r).Decode(&batch); err != nil {
		return nil, err
	}

	attemptID := core.NewID()
	for i := range batch {
		if batch[i].AttemptID == "" {
			batch[i].AttemptID = attemptID
		}
		if batch[i].TaskID == "" {
			batch[i].TaskID = strconv.Itoa(i)
		}
	}
	return batch, nil
}

type resultKey struct {
	attemptID string
	taskID    string
}

// awaitResults receives until every definition of batch has a result, or
// until a missing function aborted the batch when abortOnMissing is set.
// Results received before a failure are returned with the error.
func awaitResults(ctx context.Context, client resultReceiver, batch core.TaskBatch, abortOnMissing bool) (core.ResultBatch, error) {
	pending := make(map[resultKey]struct{}, len(batch))
	for _, def := range batch {
		pending[resultKey{def.AttemptID, def.TaskID}] = struct{}{}
	}

	var results core.ResultBatch
	for len(pending) > 0 {
		received, err := client.Receive(ctx)
		if err != nil {
			return results, fmt.Errorf("%d result(s) missing: %w", len(pending), err)
		}
		for _, r := range received {
			key := resultKey{r.AttemptID, r.TaskID}
			if _, ok := pending[key]; !ok {
				continue
			}
			delete(pending, key)
			results = append(results, r)

			if abortOnMissing && r.Result.Error != nil && r.Result.Error.Reason == core.ReasonMissingFunction {
				return results, nil
			}
		}
	}
	return results, nil
}

type resultReceiver interface {
	Receive(ctx context.Context) (core.ResultBatch, error)
}
