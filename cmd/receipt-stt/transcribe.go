package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/chaz8081/receipt-stt/internal/audio"
	"github.com/chaz8081/receipt-stt/internal/logging"
	"github.com/chaz8081/receipt-stt/internal/pipeline"
	"github.com/chaz8081/receipt-stt/internal/transcribe"
)

var (
	transcribeLang        string
	transcribeContentType string
	transcribeName        string
	transcribeMetricsOut  string
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe an audio file",
	Long: `Transcribe reads an audio file, converts it to canonical WAV and sends it
to the configured backend. The result is printed as JSON on stdout.

The file name decides the format unless --name or --content-type says
otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	transcribeCmd.Flags().StringVar(&transcribeLang, "lang", "", "BCP-47 language code (default: config language_code)")
	transcribeCmd.Flags().StringVar(&transcribeContentType, "content-type", "", "declared MIME type of the upload")
	transcribeCmd.Flags().StringVar(&transcribeName, "name", "", "declared filename of the upload (default: base name of <file>)")
	transcribeCmd.Flags().StringVar(&transcribeMetricsOut, "metrics-out", "", "write Prometheus metrics to this textfile after the run")
	rootCmd.AddCommand(transcribeCmd)
}

type transcribeOutput struct {
	Status       string `json:"status"`
	Transcript   string `json:"transcript,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	Error        string `json:"error,omitempty"`
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	asset, err := readAsset(args[0], transcribeName, transcribeContentType)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := pipeline.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	tr, err := transcribe.New(cmd.Context(), &cfg.Transcribe)
	if err != nil {
		return err
	}
	defer tr.Close()

	p := pipeline.New(newTranscoder(metrics), tr,
		pipeline.WithLogger(logging.Component(logger, "pipeline")),
		pipeline.WithMetrics(metrics),
	)

	lang := transcribeLang
	if lang == "" {
		lang = cfg.LanguageCode
	}

	res, runErr := p.Process(cmd.Context(), asset, lang)

	if transcribeMetricsOut != "" {
		if err := prometheus.WriteToTextfile(transcribeMetricsOut, reg); err != nil {
			logger.Warn().Err(err).Str("path", transcribeMetricsOut).Msg("failed to write metrics")
		}
	}

	out := transcribeOutput{Status: "success", Transcript: res.Transcript, LanguageCode: res.LanguageCode}
	if runErr != nil {
		out = transcribeOutput{Status: "error", Error: runErr.Error()}
	}
	if err := printJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	return runErr
}

func readAsset(path, name, contentType string) (audio.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return audio.Asset{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return audio.Asset{Data: data, Filename: name, ContentType: contentType}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
