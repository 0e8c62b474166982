package commands

import (
	"fmt"
	"os"

	"github.com/edulane/insights-api/internal/config"
	"github.com/spf13/cobra"
)

// NewPolicyCmd creates the policy command, which prints the resolved
// generation policy after file overlays.
func NewPolicyCmd() *cobra.Command {
	var policyFile string
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show the resolved generation policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if policyFile == "" {
				policyFile = os.Getenv("POLICY_FILE")
			}
			policy, err := config.LoadPolicy(policyFile)
			if err != nil {
				return fmt.Errorf("load policy: %w", err)
			}

			fmt.Println("Generation policy:")
			fmt.Printf("  Cooldown:        %s\n", policy.Insight.Cooldown)
			fmt.Printf("  Quota:           %d per %s\n", policy.Insight.QuotaLimit, policy.Insight.QuotaWindow)
			fmt.Printf("  AI timeout:      %s\n", policy.Insight.AITimeout)
			fmt.Printf("  Lock TTL:        %s\n", policy.Insight.LockTTL)
			fmt.Printf("  Prompt version:  %s\n", policy.Insight.PromptVersion)
			fmt.Printf("  Default model:   %s\n", policy.Insight.DefaultModel)
			if policy.EventLoadLimit > 0 {
				fmt.Printf("  Event limit:     %d\n", policy.EventLoadLimit)
			}
			fmt.Println("Ranges:")
			for _, key := range policy.Ranges.Keys() {
				fmt.Printf("  %-6s %s\n", key, policy.Ranges[key])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&policyFile, "file", "", "Policy YAML file (defaults to POLICY_FILE env)")
	return cmd
}
