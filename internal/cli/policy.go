package cli

import (
	"github.com/spf13/cobra"

	"github.com/cathedral-fabric/fabric/internal/policy"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// NewPolicyCommand groups validate/test/explain under `fabric policy`,
// per section 4.5.
func NewPolicyCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "validate, test, or explain a policy definition",
	}
	cmd.AddCommand(newPolicyValidateCommand(root))
	cmd.AddCommand(newPolicyTestCommand(root))
	cmd.AddCommand(newPolicyExplainCommand(root))
	return cmd
}

func newPolicyValidateCommand(root *RootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:           "validate",
		Short:         "compile a policy definition, reporting any grant/deny conflict or rule error",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(root, cmd)
			def, err := loadPolicyDefinition(path)
			if err != nil {
				return WrapExitError(ExitUserError, "load policy definition", err)
			}
			if _, err := policy.Compile(def); err != nil {
				out.Error("PolicyInvalid", err.Error(), nil)
				return WrapExitError(ExitUserError, "compile policy", err)
			}
			return out.Success(map[string]any{"policy_id": def.ID, "valid": true})
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "path to a policy definition file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPolicyTestCommand(root *RootOptions) *cobra.Command {
	var path, toolName, tenantID string
	var capName string
	cmd := &cobra.Command{
		Use:           "test",
		Short:         "evaluate a policy against one match context and print the decision",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(root, cmd)
			def, err := loadPolicyDefinition(path)
			if err != nil {
				return WrapExitError(ExitUserError, "load policy definition", err)
			}
			compiled, err := policy.Compile(def)
			if err != nil {
				return WrapExitError(ExitUserError, "compile policy", err)
			}

			ctx := policy.MatchContext{ToolName: toolName, TenantID: tenantID}
			if capName != "" {
				kind, err := capabilityKind(capName)
				if err != nil {
					return WrapExitError(ExitUserError, "parse capability", err)
				}
				ctx.CapabilityKind = kind
			}

			proof, err := compiled.Decide(ctx, core.LogicalTime(0))
			if err != nil {
				return WrapExitError(ExitUserError, "decide", err)
			}
			if !proof.Allowed {
				out.Success(decisionReport(proof))
				return NewExitError(ExitDenied, "denied by policy "+proof.PolicyID)
			}
			return out.Success(decisionReport(proof))
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "path to a policy definition file (required)")
	cmd.Flags().StringVar(&toolName, "tool", "", "tool_name to evaluate against")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant_id to evaluate against")
	cmd.Flags().StringVar(&capName, "capability", "", "capability kind to evaluate against")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPolicyExplainCommand(root *RootOptions) *cobra.Command {
	var path, toolName, tenantID string
	cmd := &cobra.Command{
		Use:           "explain",
		Short:         "print the reasoning a policy decision would produce for one match context",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(root, cmd)
			def, err := loadPolicyDefinition(path)
			if err != nil {
				return WrapExitError(ExitUserError, "load policy definition", err)
			}
			compiled, err := policy.Compile(def)
			if err != nil {
				return WrapExitError(ExitUserError, "compile policy", err)
			}

			ctx := policy.MatchContext{ToolName: toolName, TenantID: tenantID}
			proof, err := compiled.Decide(ctx, core.LogicalTime(0))
			if err != nil {
				return WrapExitError(ExitUserError, "decide", err)
			}
			return out.Success(decisionReport(proof))
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "path to a policy definition file (required)")
	cmd.Flags().StringVar(&toolName, "tool", "", "tool_name to evaluate against")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant_id to evaluate against")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func decisionReport(p *policy.DecisionProof) map[string]any {
	return map[string]any{
		"decision_id":      p.DecisionID.UUID.String(),
		"policy_id":        p.PolicyID,
		"allowed":          p.Allowed,
		"matched_artifact": p.MatchedArtifact,
		"reasoning":        p.Reasoning.String(),
	}
}
