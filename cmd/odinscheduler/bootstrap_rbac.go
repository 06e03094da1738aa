package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/linlanniao/odinscheduler/internal/cluster"
)

var bootstrapRBACName string

var bootstrapRBACCmd = &cobra.Command{
	Use:   "bootstrap-rbac",
	Short: "Apply the ServiceAccount/ClusterRole/ClusterRoleBinding this process runs under",
	RunE:  runBootstrapRBAC,
}

func init() {
	bootstrapRBACCmd.Flags().StringVar(&bootstrapRBACName, "name", "odinscheduler", "Name shared by the ServiceAccount, ClusterRole and ClusterRoleBinding")
	bootstrapRBACCmd.Flags().StringVar(&flagNamespace, "namespace", "default", "Namespace the ServiceAccount is created in")
	rootCmd.AddCommand(bootstrapRBACCmd)
}

func runBootstrapRBAC(cmd *cobra.Command, args []string) error {
	cc, err := cluster.Get(flagNamespace, 2*time.Minute)
	if err != nil {
		return fmt.Errorf("connecting to cluster: %w", err)
	}
	labels := map[string]string{"app.kubernetes.io/managed-by": "odinscheduler"}
	if err := cc.BootstrapRBAC(cmd.Context(), bootstrapRBACName, labels); err != nil {
		return fmt.Errorf("applying rbac: %w", err)
	}
	fmt.Printf("odinscheduler: bootstrapped rbac %q in namespace %q\n", bootstrapRBACName, flagNamespace)
	return nil
}
