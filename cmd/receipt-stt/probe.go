package main

import (
	"github.com/spf13/cobra"

	"github.com/chaz8081/receipt-stt/internal/audio"
)

var (
	probeContentType string
	probeName        string
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Show how a file would be detected and converted",
	Long: `Probe runs detection, encoding selection and canonicalization on a file
without calling the speech backend, and prints what it found.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeContentType, "content-type", "", "declared MIME type of the upload")
	probeCmd.Flags().StringVar(&probeName, "name", "", "declared filename of the upload (default: base name of <file>)")
	rootCmd.AddCommand(probeCmd)
}

type probeOutput struct {
	Filename   string         `json:"filename"`
	Format     audio.Format   `json:"format"`
	Reason     audio.Reason   `json:"reason"`
	Encoding   audio.Encoding `json:"encoding"`
	Strategy   string         `json:"strategy,omitempty"`
	Canonical  *canonicalInfo `json:"canonical,omitempty"`
	Strategies []string       `json:"strategies"`
	Error      string         `json:"error,omitempty"`
}

type canonicalInfo struct {
	Bytes      int     `json:"bytes"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	BitDepth   int     `json:"bit_depth"`
	Seconds    float64 `json:"seconds"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	asset, err := readAsset(args[0], probeName, probeContentType)
	if err != nil {
		return err
	}

	det := audio.Detect(asset)
	tc := newTranscoder(nil)
	out := probeOutput{
		Filename:   asset.Filename,
		Format:     det.Format,
		Reason:     det.Reason,
		Encoding:   audio.SelectEncoding(det.Format),
		Strategies: tc.Strategies(),
	}

	wav, strategy, err := tc.CanonicalizeWith(cmd.Context(), asset.Data, det.Format)
	if err != nil {
		out.Error = err.Error()
		return printJSON(cmd.OutOrStdout(), out)
	}
	out.Strategy = strategy

	// Passthrough strategies can return non-WAV bytes.
	if info, err := audio.Probe(wav); err == nil {
		out.Canonical = &canonicalInfo{
			Bytes:      len(wav),
			SampleRate: info.SampleRate,
			Channels:   info.Channels,
			BitDepth:   info.BitDepth,
			Seconds:    info.Duration.Seconds(),
		}
	}
	return printJSON(cmd.OutOrStdout(), out)
}
