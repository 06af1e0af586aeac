package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/socify/socify_downloader/internal/orchestrator"
	"github.com/socify/socify_downloader/internal/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type SubmitOptions struct {
	GlobalOptions

	URL  string
	Drop bool

	out io.Writer
	err io.Writer
}

func DefaultSubmitOptions() *SubmitOptions {
	return &SubmitOptions{
		GlobalOptions: DefaultGlobalOptions(),
		out:           os.Stdout,
		err:           os.Stderr,
	}
}

func NewCmdSubmit() *cobra.Command {
	o := DefaultSubmitOptions()
	cmd := &cobra.Command{
		Use:   "submit [URL]",
		Short: "Submit a content URL and save every file the backend returns.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *SubmitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.URL, "url", "u", o.URL, "Content URL to submit")
	fs.BoolVar(&o.Drop, "drop", o.Drop, "Treat the input as dropped text: it must mention instagram.com")
}

func (o *SubmitOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}

	if len(args) == 1 && o.URL == "" {
		o.URL = args[0]
	}

	return nil
}

func (o *SubmitOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if len(args) == 1 && args[0] != o.URL {
		return fmt.Errorf("pass the URL either as an argument or with --url, not both")
	}

	return nil
}

func (o *SubmitOptions) Run(ctx context.Context, args []string) error {
	cfg := o.Config()
	logger := newLogger(o.err, cfg)
	ctx = logctx.WithLogger(ctx, logger)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.drain(context.WithoutCancel(ctx))

	var (
		mu         sync.Mutex
		retrievals []orchestrator.Retrieval
	)

	a.orchestrator.OnRetrieval(func(_ context.Context, r orchestrator.Retrieval) {
		mu.Lock()
		defer mu.Unlock()

		retrievals = append(retrievals, r)
	})

	if o.Drop {
		if !a.collector.HandleDrop(ctx, o.URL) {
			return errors.New(a.orchestrator.State().Message)
		}
	} else {
		a.collector.SetURLFromText(ctx, o.URL)
	}

	state := a.orchestrator.Submit(ctx, a.orchestrator.State().URL)
	if state.Status == workflow.StatusError {
		return errors.New(state.Message)
	}

	fmt.Fprintln(o.out, state.Message)

	a.orchestrator.Wait()

	mu.Lock()
	defer mu.Unlock()

	return printSummary(o.out, state.Files, retrievals)
}

// printSummary lists every retrieval and fails when any of them did.
func printSummary(w io.Writer, files []workflow.FileDescriptor, retrievals []orchestrator.Retrieval) error {
	if len(files) == 0 {
		fmt.Fprintln(w, "The backend returned no files.")

		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTYPE\tSIZE\tRESULT")

	var failed int

	for _, r := range retrievals {
		size := r.File.Size

		var result string

		switch {
		case r.Err != nil:
			failed++
			result = "failed: " + r.Err.Error()
		default:
			result = "saved to " + r.Result.Path
			size = humanize.Bytes(uint64(r.Result.Bytes))
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.File.Name, r.File.Type, size, result)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be saved", failed, len(retrievals))
	}

	return nil
}
