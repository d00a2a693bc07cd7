package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"detectionserver/internal/config"
	"detectionserver/internal/logger"
	"detectionserver/internal/model"
	"detectionserver/internal/reporter"
)

type options struct {
	url           string
	source        string
	batchSize     int
	timeout       time.Duration
	stream        bool
	flushInterval time.Duration
}

type summary struct {
	Read          int
	Skipped       int
	Sent          int
	Batches       int
	Inserted      int
	FailedBatches int
}

// Command creates the replay command that sends recorded detections to a server.
func Command() *cobra.Command {
	defaults := config.LoadReporter()
	opts := options{
		url:           defaults.BackendURL,
		source:        defaults.SourceID,
		batchSize:     reporter.DefaultBufferLimit,
		timeout:       defaults.Timeout,
		flushInterval: reporter.DefaultFlushInterval,
	}

	cmd := &cobra.Command{
		Use:   "replay [detections.json|detections.jsonl|-]",
		Short: "Replay recorded detections into a detection server",
		Long: `Read detections from a JSON array or JSON-lines file and post them
to a detection server in batches. Records without a timestamp are stamped
by the server on arrival.

With --stream, records are queued as they are read and flushed per source
every --flush-interval or once --batch-size records are waiting, like a live
producer. Use "-" to read JSON lines from stdin.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.batchSize <= 0 {
				return fmt.Errorf("--batch-size must be positive")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			log, err := logger.NewLogger("")
			if err != nil {
				return err
			}

			in, closeInput, err := openInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			defer closeInput()

			if opts.stream {
				_, err = runStream(ctx, cmd.OutOrStdout(), in, opts, log)
				return err
			}
			_, err = runReplay(ctx, cmd.OutOrStdout(), in, opts, log)
			return err
		},
	}

	setupFlags(cmd, &opts)
	return cmd
}

// setupFlags configures flags of the replay command.
func setupFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.url, "url", "u", opts.url, "Detection endpoint (BACKEND_URL)")
	cmd.Flags().StringVarP(&opts.source, "source", "s", opts.source, "Batch source for records without one (SOURCE_ID)")
	cmd.Flags().IntVarP(&opts.batchSize, "batch-size", "b", opts.batchSize, "Detections per request")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", opts.timeout, "Timeout per request (REPORT_TIMEOUT)")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Queue records as they are read and flush them periodically")
	cmd.Flags().DurationVar(&opts.flushInterval, "flush-interval", opts.flushInterval, "Flush interval in --stream mode")
}

func openInput(stdin io.Reader, path string) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

// runReplay reads every record first and sends them in fixed-size batches,
// counting what the server inserted.
func runReplay(ctx context.Context, out io.Writer, in io.Reader, opts options, log *logger.Logger) (summary, error) {
	var sum summary

	detections, skipped, err := readDetections(in, opts.source)
	if err != nil {
		return sum, err
	}
	sum.Read = len(detections) + skipped
	sum.Skipped = skipped

	rep := reporter.New(opts.url, log, reporter.WithTimeout(opts.timeout))
	for start := 0; start < len(detections); start += opts.batchSize {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		end := min(start+opts.batchSize, len(detections))
		batch := detections[start:end]

		sum.Batches++
		sum.Sent += len(batch)
		inserted, err := rep.SendBatch(ctx, opts.source, batch)
		if err != nil {
			sum.FailedBatches++
			log.Warning("Batch %d (%d detections) failed: %v", sum.Batches, len(batch), err)
			continue
		}
		sum.Inserted += inserted
	}

	fmt.Fprintf(out, "Read %d records (%d skipped)\n", sum.Read, sum.Skipped)
	fmt.Fprintf(out, "Sent %d detections in %d batches: %d inserted, %d failed batches\n",
		sum.Sent, sum.Batches, sum.Inserted, sum.FailedBatches)
	return sum, nil
}

// runStream queues records through a reporter.Buffer while reading. Send
// failures are logged by the reporter, so only read and queued counts are known.
func runStream(ctx context.Context, out io.Writer, in io.Reader, opts options, log *logger.Logger) (summary, error) {
	var sum summary

	rep := reporter.New(opts.url, log, reporter.WithTimeout(opts.timeout))
	buf := reporter.NewBuffer(rep, opts.batchSize)

	runCtx, stopFlushing := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		buf.Run(runCtx, opts.flushInterval)
		close(done)
	}()

	skipped, err := scanRecords(in, opts.source, func(det model.Detection) {
		buf.Add(ctx, det.Source, det)
		sum.Sent++
	})

	// Run flushes whatever is still pending before it returns.
	stopFlushing()
	<-done

	sum.Skipped = skipped
	sum.Read = sum.Sent + skipped
	if err != nil {
		return sum, err
	}

	fmt.Fprintf(out, "Read %d records (%d skipped)\n", sum.Read, sum.Skipped)
	fmt.Fprintf(out, "Queued %d detections\n", sum.Sent)
	return sum, nil
}

// noTimestamp leaves the timestamp of records without one at zero.
func noTimestamp() time.Time { return time.Time{} }

// readDetections accepts a JSON array of records or one record per line.
// Records that do not validate are counted as skipped.
func readDetections(r io.Reader, source string) ([]model.Detection, int, error) {
	var detections []model.Detection
	skipped, err := scanRecords(r, source, func(det model.Detection) {
		detections = append(detections, det)
	})
	if err != nil {
		return nil, 0, err
	}
	return detections, skipped, nil
}

// scanRecords calls add for every valid record of a JSON array or JSON-lines
// input, in order. JSON lines are handled as they arrive.
func scanRecords(r io.Reader, source string, add func(model.Detection)) (int, error) {
	br := bufio.NewReader(r)
	first, err := firstByte(br)
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	skipped := 0
	handle := func(v interface{}) {
		raw, ok := v.(map[string]interface{})
		if !ok {
			skipped++
			return
		}
		det, err := model.ParseDetection(raw, source, noTimestamp)
		if err != nil {
			skipped++
			return
		}
		add(det)
	}

	if first == '[' {
		dec := json.NewDecoder(br)
		dec.UseNumber()
		var items []interface{}
		if err := dec.Decode(&items); err != nil {
			return 0, fmt.Errorf("failed to parse json array: %w", err)
		}
		for _, item := range items {
			handle(item)
		}
		return skipped, nil
	}

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			skipped++
			continue
		}
		handle(v)
	}
	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("failed to read detections: %w", err)
	}
	return skipped, nil
}

// firstByte returns the first non-space byte without consuming it.
func firstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
