package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/inspectra/inspectra/internal/inspection"
	"github.com/inspectra/inspectra/internal/lookup"
	"github.com/inspectra/inspectra/internal/platform"
	"github.com/inspectra/inspectra/pkg/config"
	"github.com/inspectra/inspectra/pkg/grading"
	"github.com/inspectra/inspectra/pkg/surface"
)

type gradeOpts struct {
	payloadPath string
	reference   string
	databaseURL string
	strategy    string
	outputFmt   string
}

func newGradeCmd(cfgFn func() *config.Config) *cobra.Command {
	var opts gradeOpts

	cmd := &cobra.Command{
		Use:   "grade <payload.json|->",
		Short: "Grade an inspection payload without storing it",
		Long: `Grades an inspection payload against reference data and prints the
result. Reference data comes from a YAML file (--reference) or, when none is
given, from the inspection database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.payloadPath = args[0]
			return runGrade(cmd.Context(), cfgFn(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.reference, "reference", "", "Path to a YAML reference data file")
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "Postgres URL to read reference data from (default: config)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Grading strategy: avg_critical, weights or criteria (default: config)")
	cmd.Flags().StringVar(&opts.outputFmt, "output", "text", "Output format: text, markdown or json")

	return cmd
}

func runGrade(ctx context.Context, cfg *config.Config, opts gradeOpts, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	renderer, err := surface.ForFormat(opts.outputFmt)
	if err != nil {
		return err
	}
	kind, err := grading.ParseKind(firstNonEmpty(opts.strategy, cfg.Grading.DefaultStrategy))
	if err != nil {
		return err
	}

	payload, err := readPayload(opts.payloadPath, stdin)
	if err != nil {
		return err
	}

	l, closeFn, err := openLookup(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	svc := inspection.NewService(inspection.NewAggregator(l), nil, nil, kind)
	res, err := svc.Preview(ctx, payload, kind)
	if err != nil {
		return fmt.Errorf("grading %s: %w", opts.payloadPath, err)
	}
	return renderer.Render(stdout, res)
}

func readPayload(path string, stdin io.Reader) (inspection.Payload, error) {
	var p inspection.Payload

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return p, fmt.Errorf("reading payload: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing payload: %w", err)
	}
	return p, nil
}

// openLookup picks the reference data source: a YAML file when one is
// configured, the database otherwise.
func openLookup(ctx context.Context, cfg *config.Config, opts gradeOpts) (lookup.Lookup, func(), error) {
	if ref := firstNonEmpty(opts.reference, cfg.Grading.ReferenceFile); ref != "" {
		static, err := lookup.LoadStatic(ref)
		if err != nil {
			return nil, nil, err
		}
		return static, func() {}, nil
	}

	db, err := platform.OpenDB(ctx, firstNonEmpty(opts.databaseURL, cfg.Database.URL))
	if err != nil {
		return nil, nil, fmt.Errorf("no --reference given and %w", err)
	}
	cache := lookup.NewTypeCache(cfg.Database.TypeCacheSize)
	return lookup.NewPostgres(db, cache), func() { db.Close() }, nil
}
