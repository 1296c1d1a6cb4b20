package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitepulse/internal/engine"
	"sitepulse/internal/progress"
)

func progressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show the derived progress record of one phase",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "design <project-id>",
		Short: "Weighted design progress and revenue recognition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.DesignProgress(ctx, args[0])
				if err != nil {
					return err
				}
				return printRecord(r, r.Record, fmt.Sprintf("revenue %.2f earned of %.2f forecast", r.EarnedRevenue, r.ForecastRevenue))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "bidding <package-id>",
		Short: "Bidding step progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.PackageProgress(ctx, args[0])
				if err != nil {
					return err
				}
				return printRecord(r, r.Record, fmt.Sprintf("step %d/%d saving %s", r.CurrentStep, r.TotalSteps, money(r.Saving)))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "contract <contract-id>",
		Short: "Contract step progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.ContractProgress(ctx, args[0])
				if err != nil {
					return err
				}
				return printRecord(r, r.Record, fmt.Sprintf("step %d/%d", r.CurrentStep, r.TotalSteps))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "construction <project-id>",
		Short: "Reported construction progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.ConstructionProgress(ctx, args[0])
				if err != nil {
					return err
				}
				return printRecord(r, r.Record, "")
			})
		},
	})
	return cmd
}

func printRecord(full any, r progress.Record, extra string) error {
	if viper.GetBool("json") {
		return printJSON(full)
	}
	plan := fmt.Sprintf("%d%%", r.PlanPercent)
	if !r.PlanKnown {
		plan = "unknown"
	}
	fmt.Printf("actual %d%%  plan %s  %s", r.ActualPercent, plan, r.Status)
	if r.DelayDays > 0 {
		fmt.Printf(" (%d days late)", r.DelayDays)
	}
	fmt.Println()
	if extra != "" {
		fmt.Println(extra)
	}
	printWarnings(r.Warnings)
	return nil
}

func rollupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollup",
		Short: "Design revenue by business unit and owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ro, err := e.Rollups(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ro)
				}
				fmt.Printf("projects %d  budget %.2f  forecast %.2f  earned %.2f\n",
					ro.ProjectCount, ro.TotalBudget, ro.TotalForecast, ro.TotalEarned)
				printShares("Business unit", ro.ByBusinessUnit)
				printShares("Owner", ro.ByOwner)
				return nil
			})
		},
	}
}

func printShares(title string, shares []progress.Share) {
	tw := newTable(title, "Projects", "Earned", "Share")
	for _, s := range shares {
		tw.AppendRow(table.Row{s.Label, s.Projects, fmt.Sprintf("%.2f", s.Earned), fmt.Sprintf("%.1f%%", s.SharePercent)})
	}
	tw.Render()
}

func timelineCmd() *cobra.Command {
	var phase string
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Gantt geometry for one phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tl, err := e.Timeline(ctx, phase)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tl)
				}
				if len(tl.Bars) == 0 {
					fmt.Println("no records with a planned window")
					return nil
				}
				fmt.Printf("window %s .. %s (%.0f days)\n",
					tl.Window.Start.Format(progress.DateLayout), tl.Window.End.Format(progress.DateLayout), tl.Window.Days)
				tw := newTable("ID", "Label", "Left", "Plan", "Actual", "Bar", "")
				for _, b := range tl.Bars {
					flag := ""
					switch {
					case b.Completed:
						flag = "done"
					case b.Late:
						flag = "late"
					}
					tw.AppendRow(table.Row{
						b.ID, b.Label,
						fmt.Sprintf("%.1f", b.LeftPercent), fmt.Sprintf("%.1f", b.PlanWidthPercent),
						fmt.Sprintf("%.1f", b.ActualWidthPercent), fmt.Sprintf("%.1f", b.BarWidthPercent), flag,
					})
				}
				tw.Render()
				if len(tl.Skipped) > 0 {
					fmt.Printf("skipped: %s\n", strings.Join(tl.Skipped, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phase, "phase", progress.PhaseDesign, "design, bidding, contract or construction")
	return cmd
}

func kanbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kanban",
		Short: "Projects grouped by current design step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lanes, err := e.Kanban(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(lanes)
				}
				tw := newTable("#", "Step", "Projects")
				for _, l := range lanes {
					names := make([]string, len(l.Cards))
					for i, c := range l.Cards {
						names[i] = fmt.Sprintf("%s (%s)", c.ID, c.Status)
					}
					tw.AppendRow(table.Row{l.Position, l.Label, strings.Join(names, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}
