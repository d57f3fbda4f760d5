package main

import (
	"github.com/spf13/cobra"

	"github.com/chaz8081/receipt-stt/internal/eval"
	"github.com/chaz8081/receipt-stt/internal/logging"
	"github.com/chaz8081/receipt-stt/internal/pipeline"
	"github.com/chaz8081/receipt-stt/internal/transcribe"
)

var (
	evalConcurrency int
	evalMaxWER      float64
)

var evalCmd = &cobra.Command{
	Use:   "eval <manifest.yaml>",
	Short: "Measure word error rate against reference recordings",
	Long: `Eval transcribes every recording listed in a manifest and compares the
result with its reference transcript. The report is printed as JSON.

Manifest format:

  language: en-US
  samples:
    - label: coffee
      file: coffee.m4a
      transcript: two coffees eight fifty

The command fails when a sample fails or the overall WER exceeds --max-wer.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().IntVar(&evalConcurrency, "concurrency", 4, "samples transcribed at once")
	evalCmd.Flags().Float64Var(&evalMaxWER, "max-wer", -1, "fail when the overall WER is above this value (negative disables)")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	m, err := eval.LoadManifest(args[0])
	if err != nil {
		return err
	}
	if m.Language == "" {
		m.Language = cfg.LanguageCode
	}

	tr, err := transcribe.New(cmd.Context(), &cfg.Transcribe)
	if err != nil {
		return err
	}
	defer tr.Close()

	p := pipeline.New(newTranscoder(nil), tr, pipeline.WithLogger(logging.Component(logger, "pipeline")))
	runner := eval.NewRunner(p,
		eval.WithConcurrency(evalConcurrency),
		eval.WithLogger(logging.Component(logger, "eval")),
	)

	rep, err := runner.Run(cmd.Context(), m)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
		return err
	}
	return rep.Check(evalMaxWER)
}
