package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/cathedral-fabric/fabric/internal/bundle"
	"github.com/cathedral-fabric/fabric/internal/certify"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// VerifyCertOptions holds the verify-cert command's flags.
type VerifyCertOptions struct {
	*RootOptions
	CertPath  string
	BundleDir string
}

// NewVerifyCertCommand checks a certificate's signature, and, when
// --bundle is given, cross-checks its claimed log hash against the
// actual hash chain tip of a bundle on disk. Exit code is 0 for a valid
// certificate, ExitVerificationFailed otherwise, never a crash on a
// malformed or forged certificate.
func NewVerifyCertCommand(root *RootOptions) *cobra.Command {
	opts := &VerifyCertOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:           "verify-cert",
		Short:         "verify a determinism certificate's signature and claimed log hash",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyCert(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CertPath, "cert", "", "path to a signed certificate file (required)")
	cmd.Flags().StringVar(&opts.BundleDir, "bundle", "", "bundle directory to check the certificate's claimed log hash against")
	_ = cmd.MarkFlagRequired("cert")

	return cmd
}

func verifyCert(opts *VerifyCertOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	raw, err := os.ReadFile(opts.CertPath)
	if err != nil {
		return WrapExitError(ExitUserError, "read certificate file", err)
	}
	var cf certificateFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return WrapExitError(ExitUserError, "parse certificate file", err)
	}
	cert := certify.Certificate{Body: cf.Body, Signature: cf.Signature}

	if !cert.Verify() {
		out.Error("SignatureInvalid", "certificate signature does not match its body", nil)
		return NewExitError(ExitVerificationFailed, "certificate signature invalid")
	}

	report := map[string]any{
		"certificate_id":  cert.Body.ID,
		"execution_id":    cert.Body.ExecutionID,
		"claims":          claimNames(cert.Body.Claims),
		"signature_valid": true,
	}

	if opts.BundleDir != "" {
		b, err := bundle.Open(opts.BundleDir)
		if err != nil {
			return WrapExitError(ExitUserError, "open bundle", err)
		}
		defer b.Close()

		observed := core.EmptyHash
		if tip := b.Log.Tip(); tip != nil {
			observed = *tip
		}
		if err := certify.VerifyCertificate(cert, observed); err != nil {
			report["log_hash_matches"] = false
			out.Success(report)
			return WrapExitError(ExitVerificationFailed, "log hash mismatch", err)
		}
		report["log_hash_matches"] = true
	}

	return out.Success(report)
}

func claimNames(claims []certify.Claim) []string {
	names := make([]string, 0, len(claims))
	for _, c := range claims {
		names = append(names, c.Kind)
	}
	return names
}
