package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"vpainless/internal/lifecycle"
	"vpainless/pkg/logger"
	"vpainless/pkg/sdk"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage your VPN instance",
}

var createNoWait bool
var instanceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a new VPN instance",
	Run: func(cmd *cobra.Command, args []string) {
		handleInstanceCreate()
	},
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the instances you can see",
	Run: func(cmd *cobra.Command, args []string) {
		handleInstanceList()
	},
}

var instanceGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show an instance",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleInstanceGet(args[0])
	},
}

var deleteYes bool
var instanceDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Tear down an instance",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		handleInstanceDelete(id)
	},
}

var renewYes, renewNoWait bool
var instanceRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Delete your instance and provision a fresh one",
	Run: func(cmd *cobra.Command, args []string) {
		handleInstanceRenew()
	},
}

var instanceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of your instance",
	Run: func(cmd *cobra.Command, args []string) {
		handleInstanceStatus()
	},
}

func init() {
	instanceCreateCmd.Flags().BoolVar(&createNoWait, "no-wait", false, "Do not wait for the instance to become ready")
	instanceRenewCmd.Flags().BoolVar(&renewNoWait, "no-wait", false, "Do not wait for the instance to become ready")
	instanceRenewCmd.Flags().BoolVarP(&renewYes, "yes", "y", false, "Skip the confirmation prompt")
	instanceDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")

	instanceCmd.AddCommand(instanceCreateCmd, instanceListCmd, instanceGetCmd, instanceDeleteCmd, instanceRenewCmd, instanceStatusCmd)
	RootCmd.AddCommand(instanceCmd)
}

func newManager() *lifecycle.Manager {
	return lifecycle.New(Client, Cfg.PollInterval, logger.Get())
}

// currentInstance fetches the caller's instance from a fresh listing. The
// portal keeps at most one instance per client; more than one means the
// account is in a state this client cannot repair.
func currentInstance(ctx context.Context) *sdk.Instance {
	instances, err := Client.ListInstances(ctx)
	if err != nil {
		log.Fatalf("Error listing instances: %v", err)
	}
	if len(instances) > 1 {
		log.Fatalf("You have more than one instance; this is unexpected, contact your admin")
	}
	if len(instances) == 0 {
		return nil
	}
	return &instances[0]
}

func handleInstanceCreate() {
	ctx := context.Background()
	requireLogin(ctx)

	if inst := currentInstance(ctx); inst != nil {
		log.Fatalf("You already have instance %s; use 'vpainless instance renew' to replace it", inst.ID)
	}

	mgr := newManager()
	defer mgr.Close()

	if err := mgr.Create(ctx); err != nil {
		log.Fatalf("Error creating instance: %v", err)
	}
	fmt.Println("Instance creation requested. This may take 5 minutes or more.")

	if createNoWait {
		return
	}
	waitForReady(mgr)
}

func handleInstanceList() {
	ctx := context.Background()
	requireLogin(ctx)

	instances, err := Client.ListInstances(ctx)
	if err != nil {
		log.Fatalf("Error listing instances: %v", err)
	}

	if len(instances) == 0 {
		fmt.Println("No instances.")
		return
	}
	fmt.Println("Instances:")
	for _, inst := range instances {
		fmt.Printf("- %s [%s] IP: %s Owner: %s\n", inst.ID, inst.Status, inst.IP, inst.Owner)
	}
}

func handleInstanceGet(id string) {
	if _, err := uuid.Parse(id); err != nil {
		log.Fatalf("Invalid instance id %q: %v", id, err)
	}

	ctx := context.Background()
	requireLogin(ctx)

	inst, err := Client.GetInstance(ctx, id)
	if err != nil {
		log.Fatalf("Error fetching instance: %v", err)
	}

	fmt.Printf("ID:     %s\n", inst.ID)
	fmt.Printf("Owner:  %s\n", inst.Owner)
	fmt.Printf("IP:     %s\n", inst.IP)
	fmt.Printf("Status: %s\n", inst.Status)
	if inst.ConnectionString != "" {
		fmt.Printf("Connection string:\n%s\n", inst.ConnectionString)
	}
}

func handleInstanceDelete(id string) {
	ctx := context.Background()
	requireLogin(ctx)

	var inst *sdk.Instance
	if id == "" {
		inst = currentInstance(ctx)
		if inst == nil {
			log.Fatal("No instance to delete")
		}
	} else {
		if _, err := uuid.Parse(id); err != nil {
			log.Fatalf("Invalid instance id %q: %v", id, err)
		}
		var err error
		inst, err = Client.GetInstance(ctx, id)
		if err != nil {
			log.Fatalf("Error fetching instance: %v", err)
		}
	}

	if !deleteYes && !confirm(fmt.Sprintf("Delete instance %s? This cannot be undone.", inst.ID)) {
		fmt.Println("Aborted.")
		return
	}

	mgr := newManager()
	defer mgr.Close()
	mgr.Adopt(inst)
	if err := mgr.Delete(ctx); err != nil {
		log.Fatalf("Error deleting instance: %v", err)
	}
	fmt.Println("Instance deleted successfully.")
}

func handleInstanceRenew() {
	ctx := context.Background()
	requireLogin(ctx)

	inst := currentInstance(ctx)
	if inst == nil {
		log.Fatal("No instance to renew; use 'vpainless instance create'")
	}

	if !renewYes && !confirm(fmt.Sprintf("Renew instance %s? The old instance is deleted first.", inst.ID)) {
		fmt.Println("Aborted.")
		return
	}

	mgr := newManager()
	defer mgr.Close()
	mgr.Adopt(inst)

	if err := mgr.Renew(ctx); err != nil {
		log.Fatalf("Error renewing instance: %v", err)
	}
	fmt.Println("Renewal requested. This may take 5 minutes or more.")

	if renewNoWait {
		return
	}
	waitForReady(mgr)
}

func handleInstanceStatus() {
	ctx := context.Background()
	requireLogin(ctx)

	inst := currentInstance(ctx)
	if inst == nil {
		fmt.Println("No instance.")
		return
	}

	// Re-read the live status instead of trusting the listing snapshot.
	// If the instance is transient the adopt arms the poller, and the
	// refresh collapses into its in-flight fetch.
	mgr := newManager()
	defer mgr.Close()
	mgr.Adopt(inst)
	if err := mgr.Refresh(ctx); err != nil {
		log.Fatalf("Error refreshing instance: %v", err)
	}

	st := mgr.Current()
	if st.Instance == nil {
		fmt.Println("No instance.")
		return
	}
	fmt.Printf("Instance %s: %s\n", st.Instance.ID, st.Instance.Status)
	if st.Label != "" {
		fmt.Printf("Status: %s\n", st.Label)
	}
}

// waitForReady tails lifecycle updates until the instance settles, printing
// status changes the way the portal pages show them.
func waitForReady(mgr *lifecycle.Manager) {
	last := ""
	for st := range mgr.Updates() {
		switch st.Phase {
		case lifecycle.PhaseReady:
			fmt.Println("VPN Ready!")
			if st.Instance != nil && st.Instance.ConnectionString != "" {
				fmt.Printf("Connection string:\n%s\n", st.Instance.ConnectionString)
			}
			return
		case lifecycle.PhaseError:
			fmt.Fprintf(os.Stderr, "Provisioning failed: %v\n", st.Err)
			os.Exit(1)
		default:
			if st.Err != nil {
				fmt.Fprintf(os.Stderr, "Error refreshing instance: %v (still retrying)\n", st.Err)
			} else if st.Label != "" && st.Label != last {
				fmt.Printf("Status: %s\n", st.Label)
				last = st.Label
			}
		}
	}
}
