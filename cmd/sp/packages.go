package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitepulse/internal/engine"
	"sitepulse/internal/progress"
)

func packageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "package", Short: "Manage bidding packages"}
	cmd.AddCommand(packageCreateCmd())
	cmd.AddCommand(packageListCmd())
	cmd.AddCommand(packageShowCmd())
	cmd.AddCommand(packageStepCmd())
	cmd.AddCommand(packageScheduleCmd())
	cmd.AddCommand(packageMoveCmd())
	cmd.AddCommand(packageAwardCmd())
	cmd.AddCommand(packageLifecycleCmd())
	cmd.AddCommand(packageSummaryCmd())
	return cmd
}

func packageCreateCmd() *cobra.Command {
	var opts engine.PackageCreateOptions
	var budget float64
	var projects string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a bidding package",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Budget = changedFloat(cmd, "budget", budget)
			opts.ProjectIDs = splitList(projects)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.CreatePackage(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("created package %s\n", v.Package.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "package id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "package name")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().StringVar(&projects, "projects", "", "comma-separated linked project ids")
	cmd.Flags().StringVar(&opts.PlanStart, "start", "", "plan start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PlanEnd, "end", "", "plan end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func packageListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bidding packages with progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				views, err := e.ListPackages(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := newTable("ID", "Name", "Owner", "Step", "Actual", "Plan", "Status", "Budget", "Saving")
				for _, v := range views {
					r := v.Progress
					tw.AppendRow(table.Row{
						r.ID, r.Name, r.Owner,
						fmt.Sprintf("%d/%d", r.CurrentStep, r.TotalSteps),
						fmt.Sprintf("%d%%", r.ActualPercent), fmt.Sprintf("%d%%", r.PlanPercent), r.Status,
						fmt.Sprintf("%.2f", r.Budget), money(r.Saving),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner")
	return cmd
}

func packageShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <package-id>",
		Short: "Show a package with every step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.Package(ctx, args[0])
				if err != nil {
					return err
				}
				return printPackage(v)
			})
		},
	}
}

func printPackage(v engine.PackageView) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	r := v.Progress
	fmt.Printf("%s  %s  [%s]  owner %s\n", r.ID, r.Name, r.Lifecycle, r.Owner)
	fmt.Printf("bidding: step %d/%d  %d%% actual / %d%% plan  %s\n", r.CurrentStep, r.TotalSteps, r.ActualPercent, r.PlanPercent, r.Status)
	if a := v.Package.Award; a != nil {
		fmt.Printf("award: winner %q final %s median %s saving %s\n", a.Winner, money(a.FinalPrice), money(a.MedianPrice), money(r.Saving))
	}
	printMarks(v.Labels, v.Marks)
	printTransition(v.Transition)
	printWarnings(r.Warnings)
	return nil
}

func printMarks(labels []string, marks []progress.StepMark) {
	tw := newTable("#", "Step", "State", "Date", "Time", "Note")
	for _, m := range marks {
		label := ""
		if m.Position-1 < len(labels) {
			label = labels[m.Position-1]
		}
		tw.AppendRow(table.Row{m.Position, label, m.State, m.Date, m.Time, m.Note})
	}
	tw.Render()
}

func printTransition(tr *progress.Transition) {
	if tr == nil || tr.From == tr.To {
		return
	}
	fmt.Printf("moved %d -> %d\n", tr.From, tr.To)
}

func packageStepCmd() *cobra.Command {
	var date, note string
	cmd := &cobra.Command{
		Use:   "step <package-id> <step>",
		Short: "Complete a bidding step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("step: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.CompletePackageStep(ctx, args[0], step, date, note)
				if err != nil {
					return err
				}
				return printPackage(v)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "completion date (default today)")
	cmd.Flags().StringVar(&note, "note", "", "note")
	return cmd
}

func packageScheduleCmd() *cobra.Command {
	var date, clock, note string
	cmd := &cobra.Command{
		Use:   "schedule <package-id> <step>",
		Short: "Book an appointment on a bidding step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("step: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.SchedulePackageStep(ctx, args[0], step, date, clock, note)
				if err != nil {
					return err
				}
				return printPackage(v)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "appointment date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clock, "time", "", "appointment time (HH:MM)")
	cmd.Flags().StringVar(&note, "note", "", "note")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func packageMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <package-id> <step>",
		Short: "Set the current bidding step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("step: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.MovePackageStep(ctx, args[0], step)
				if err != nil {
					return err
				}
				return printPackage(v)
			})
		},
	}
}

func packageAwardCmd() *cobra.Command {
	var winner string
	var final, median, lowest, average float64
	cmd := &cobra.Command{
		Use:   "award <package-id>",
		Short: "Record the bid outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			award := progress.Award{
				Winner:       winner,
				FinalPrice:   changedFloat(cmd, "final", final),
				MedianPrice:  changedFloat(cmd, "median", median),
				LowestBid:    changedFloat(cmd, "lowest", lowest),
				AveragePrice: changedFloat(cmd, "average", average),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.RecordAward(ctx, args[0], award)
				if err != nil {
					return err
				}
				return printPackage(v)
			})
		},
	}
	cmd.Flags().StringVar(&winner, "winner", "", "winning bidder")
	cmd.Flags().Float64Var(&final, "final", 0, "final price")
	cmd.Flags().Float64Var(&median, "median", 0, "median price")
	cmd.Flags().Float64Var(&lowest, "lowest", 0, "lowest bid")
	cmd.Flags().Float64Var(&average, "average", 0, "average price")
	return cmd
}

func packageLifecycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lifecycle <package-id> <Active|Hold|Cancelled|Completed>",
		Short: "Set the package lifecycle override",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.SetPackageLifecycle(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printPackage(v)
			})
		},
	}
}

func packageSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Bidding dashboard: counts, savings and fees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.BiddingSummary(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("packages %d  on plan %d  delay %d  done %d  hold %d  cancelled %d\n",
					s.Packages, s.OnPlan, s.Delay, s.Done, s.Hold, s.Cancelled)
				fmt.Printf("budget %.2f  saving %.2f (%.1f%%)  fee %.2f of %.2f (%.1f%%)\n",
					s.TotalBudget, s.TotalSaving, s.SavingPercent, s.EarnedFee, s.TargetFee, s.FeePercent)
				tw := newTable("Owner", "Packages", "Completed", "Budget", "Share")
				for _, o := range s.ByOwner {
					tw.AppendRow(table.Row{o.Owner, o.Packages, o.Completed, fmt.Sprintf("%.2f", o.Budget), fmt.Sprintf("%.1f%%", o.BudgetSharePercent)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func contractCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contract", Short: "Manage contracts"}
	cmd.AddCommand(contractCreateCmd())
	cmd.AddCommand(contractListCmd())
	cmd.AddCommand(contractShowCmd())
	cmd.AddCommand(contractStepCmd())
	cmd.AddCommand(contractMoveCmd())
	cmd.AddCommand(contractLifecycleCmd())
	cmd.AddCommand(contractDeleteCmd())
	return cmd
}

func contractCreateCmd() *cobra.Command {
	var opts engine.ContractCreateOptions
	var value float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a contract for a package",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Value = changedFloat(cmd, "value", value)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.CreateContract(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("created contract %s\n", v.Contract.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "contract id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "contract name")
	cmd.Flags().StringVar(&opts.PackageID, "package", "", "bidding package id")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner (default package owner)")
	cmd.Flags().Float64Var(&value, "value", 0, "contract value (default award final price)")
	cmd.Flags().StringVar(&opts.PlanStart, "start", "", "plan start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PlanEnd, "end", "", "plan end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func contractListCmd() *cobra.Command {
	var packageID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts with progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				views, err := e.ListContracts(ctx, packageID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := newTable("ID", "Name", "Package", "Owner", "Step", "Actual", "Plan", "Status", "Value")
				for _, v := range views {
					r := v.Progress
					tw.AppendRow(table.Row{
						r.ID, r.Name, r.PackageID, r.Owner,
						fmt.Sprintf("%d/%d", r.CurrentStep, r.TotalSteps),
						fmt.Sprintf("%d%%", r.ActualPercent), fmt.Sprintf("%d%%", r.PlanPercent), r.Status,
						money(r.Value),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&packageID, "package", "", "filter by package id")
	return cmd
}

func contractShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <contract-id>",
		Short: "Show a contract with every step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.Contract(ctx, args[0])
				if err != nil {
					return err
				}
				return printContract(v)
			})
		},
	}
}

func printContract(v engine.ContractView) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	r := v.Progress
	fmt.Printf("%s  %s  [%s]  package %s  owner %s  value %s\n", r.ID, r.Name, r.Lifecycle, r.PackageID, r.Owner, money(r.Value))
	fmt.Printf("contract: step %d/%d  %d%% actual / %d%% plan  %s\n", r.CurrentStep, r.TotalSteps, r.ActualPercent, r.PlanPercent, r.Status)
	printMarks(v.Labels, v.Marks)
	printTransition(v.Transition)
	printWarnings(r.Warnings)
	return nil
}

func contractStepCmd() *cobra.Command {
	var date, note string
	cmd := &cobra.Command{
		Use:   "step <contract-id> <step>",
		Short: "Complete a contract step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("step: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.CompleteContractStep(ctx, args[0], step, date, note)
				if err != nil {
					return err
				}
				return printContract(v)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "completion date (default today)")
	cmd.Flags().StringVar(&note, "note", "", "note")
	return cmd
}

func contractMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <contract-id> <step>",
		Short: "Set the current contract step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("step: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.MoveContractStep(ctx, args[0], step)
				if err != nil {
					return err
				}
				return printContract(v)
			})
		},
	}
}

func contractLifecycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lifecycle <contract-id> <Active|Hold|Cancelled|Completed>",
		Short: "Set the contract lifecycle override",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.SetContractLifecycle(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printContract(v)
			})
		},
	}
}

func contractDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <contract-id>",
		Short: "Delete a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteContract(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted contract %s\n", args[0])
				return nil
			})
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
