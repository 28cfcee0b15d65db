package cli

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cathedral-fabric/fabric/internal/bundle"
	"github.com/cathedral-fabric/fabric/internal/certify"
	"github.com/cathedral-fabric/fabric/internal/sim"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// CertifyOptions holds the certify command's flags.
type CertifyOptions struct {
	*RootOptions
	BundleDir string
	Level     int
	Platforms []string
	KeyOut    string
}

// certificateFile is the on-disk form a certify/verify-cert round trip
// exchanges. The body already carries the validator's public key, so
// verify-cert needs nothing beyond body + signature to check it.
type certificateFile struct {
	Body      certify.Body `json:"body"`
	Signature []byte       `json:"signature"`
}

// NewCertifyCommand issues a determinism certificate for a bundle at the
// requested certification level.
func NewCertifyCommand(root *RootOptions) *cobra.Command {
	opts := &CertifyOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "certify",
		Short:         "issue a determinism certificate for a bundle",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return certifyBundle(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BundleDir, "bundle", "", "bundle directory to certify (required)")
	cmd.Flags().IntVar(&opts.Level, "level", 1, "certification level (1, 2, or 3)")
	cmd.Flags().StringSliceVar(&opts.Platforms, "platforms", nil, "platform identifiers the bundle was reproduced on (level 2/3)")
	cmd.Flags().StringVar(&opts.KeyOut, "out", "", "path to write the signed certificate (required)")
	_ = cmd.MarkFlagRequired("bundle")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func certifyBundle(opts *CertifyOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	level := certify.Level(opts.Level)
	if level < certify.LevelSingleRun || level > certify.LevelCrossPlatform {
		return NewExitError(ExitUserError, "level must be 1, 2, or 3")
	}

	b, err := bundle.Open(opts.BundleDir)
	if err != nil {
		return WrapExitError(ExitUserError, "open bundle", err)
	}
	defer b.Close()

	events, err := b.Log.All()
	if err != nil {
		return WrapExitError(ExitVerificationFailed, "read event log", err)
	}
	runCount := 1
	if level >= certify.LevelMultiRun {
		runCount = 3
	}

	comparison := sim.Comparison{Identical: true, DivergentAt: -1}
	finalHash := core.EmptyHash
	if tip := b.Log.Tip(); tip != nil {
		finalHash = *tip
	}
	for i := 0; i < runCount; i++ {
		comparison.Records = append(comparison.Records, sim.Record{
			Seed:       uint64(i),
			EventCount: len(events),
			FinalHash:  finalHash,
		})
	}

	signer, err := certify.NewSigner()
	if err != nil {
		return WrapExitError(ExitUserError, "generate signer", err)
	}
	cfg := certify.DefaultConfig()
	cfg.Metadata = map[string]string{"platforms": strings.Join(opts.Platforms, ",")}
	certifier := certify.NewCertifier(cfg, signer)

	cert, err := certifier.Certify(b.Metadata.RunID, level, comparison, uint64(len(events)))
	if err != nil {
		out.Error("CertificationFailed", err.Error(), nil)
		return WrapExitError(ExitVerificationFailed, "certify", err)
	}

	cf := certificateFile{Body: cert.Body, Signature: cert.Signature}
	raw, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return WrapExitError(ExitUserError, "encode certificate", err)
	}
	if err := os.WriteFile(opts.KeyOut, raw, 0o644); err != nil {
		return WrapExitError(ExitUserError, "write certificate", err)
	}

	return out.Success(map[string]any{
		"certificate_id": cert.Body.ID,
		"level":          int(level),
		"output":         opts.KeyOut,
	})
}
