package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitepulse/internal/engine"
	"sitepulse/internal/repo"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects and their design steps"}
	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectShowCmd())
	cmd.AddCommand(projectUpdateCmd())
	cmd.AddCommand(projectLifecycleCmd())
	cmd.AddCommand(projectStepCmd())
	cmd.AddCommand(projectRetemplateCmd())
	cmd.AddCommand(projectConstructionCmd())
	cmd.AddCommand(projectDeleteCmd())
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var budget float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project from the design step template",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Budget = changedFloat(cmd, "budget", budget)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("created project %s (%d design steps)\n", v.Project.ID, len(v.Steps))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.BusinessUnit, "bu", "", "business unit code")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().StringVar(&opts.Lifecycle, "lifecycle", "", "lifecycle status")
	cmd.Flags().StringVar(&opts.DesignPlanStart, "design-start", "", "design plan start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.DesignPlanEnd, "design-end", "", "design plan end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.ConstructionPlanStart, "construction-start", "", "construction plan start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.ConstructionPlanEnd, "construction-end", "", "construction plan end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects with design and construction progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				views, err := e.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := newTable("ID", "Name", "BU", "Owner", "Design", "Plan", "Status", "Construction", "Status")
				for _, v := range views {
					d, c := v.Design, v.Construction
					tw.AppendRow(table.Row{
						v.Project.ID, v.Project.Name, d.BusinessUnit, d.Owner,
						fmt.Sprintf("%d%%", d.ActualPercent), fmt.Sprintf("%d%%", d.PlanPercent), d.Status,
						fmt.Sprintf("%d%%", c.ActualPercent), c.Status,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.BusinessUnit, "bu", "", "filter by business unit")
	cmd.Flags().StringVar(&f.Owner, "owner", "", "filter by owner")
	cmd.Flags().StringVar(&f.Lifecycle, "lifecycle", "", "filter by lifecycle status")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its design steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.Project(ctx, args[0])
				if err != nil {
					return err
				}
				return printProject(v)
			})
		},
	}
}

func printProject(v engine.ProjectView) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	p, d := v.Project, v.Design
	fmt.Printf("%s  %s  [%s]\n", p.ID, p.Name, p.LifecycleStatus)
	if p.CancelReason != "" {
		fmt.Printf("cancelled: %s\n", p.CancelReason)
	}
	fmt.Printf("design: %d%% actual / %d%% plan  %s", d.ActualPercent, d.PlanPercent, d.Status)
	if d.DelayDays > 0 {
		fmt.Printf(" (%d days late)", d.DelayDays)
	}
	fmt.Printf("\nrevenue: %.2f earned of %.2f forecast\n", d.EarnedRevenue, d.ForecastRevenue)
	fmt.Printf("construction: %d%% actual / %d%% plan  %s\n", v.Construction.ActualPercent, v.Construction.PlanPercent, v.Construction.Status)
	tw := newTable("#", "Step", "Status")
	for _, s := range v.Steps {
		tw.AppendRow(table.Row{s.Position, s.Label, s.Status})
	}
	tw.Render()
	printWarnings(d.Warnings)
	printWarnings(v.Construction.Warnings)
	return nil
}

func projectUpdateCmd() *cobra.Command {
	var (
		name, bu, owner                    string
		budget                             float64
		designStart, designEnd, finish     string
		constructionStart, constructionEnd string
	)
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update project fields",
		Long:  "Only flags given on the command line are changed. Pass an empty date to clear it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProjectUpdateOptions{
				Name:                  changedString(cmd, "name", name),
				BusinessUnit:          changedString(cmd, "bu", bu),
				Owner:                 changedString(cmd, "owner", owner),
				Budget:                changedFloat(cmd, "budget", budget),
				DesignPlanStart:       changedString(cmd, "design-start", designStart),
				DesignPlanEnd:         changedString(cmd, "design-end", designEnd),
				DesignActualFinish:    changedString(cmd, "design-finish", finish),
				ConstructionPlanStart: changedString(cmd, "construction-start", constructionStart),
				ConstructionPlanEnd:   changedString(cmd, "construction-end", constructionEnd),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.UpdateProject(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printProject(v)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&bu, "bu", "", "business unit code")
	cmd.Flags().StringVar(&owner, "owner", "", "owner")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().StringVar(&designStart, "design-start", "", "design plan start")
	cmd.Flags().StringVar(&designEnd, "design-end", "", "design plan end")
	cmd.Flags().StringVar(&finish, "design-finish", "", "design actual finish")
	cmd.Flags().StringVar(&constructionStart, "construction-start", "", "construction plan start")
	cmd.Flags().StringVar(&constructionEnd, "construction-end", "", "construction plan end")
	return cmd
}

func projectLifecycleCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "lifecycle <project-id> <Active|Hold|Cancelled|Completed>",
		Short: "Set the project lifecycle override",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.SetProjectLifecycle(ctx, args[0], args[1], reason)
				if err != nil {
					return err
				}
				return printProject(v)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancel reason, kept only for Cancelled")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project with its design steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted project %s\n", args[0])
				return nil
			})
		},
	}
}

func projectStepCmd() *cobra.Command {
	var finish string
	cmd := &cobra.Command{
		Use:   "step <project-id> <position> <pending|current|completed>",
		Short: "Set the status of one design step",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("position: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.SetDesignStep(ctx, args[0], pos, args[2], finish)
				if err != nil {
					return err
				}
				return printProject(v)
			})
		},
	}
	cmd.Flags().StringVar(&finish, "finish", "", "design actual finish when this completes the last step (default today)")
	return cmd
}

func projectRetemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retemplate <project-id>",
		Short: "Replace design steps with the configured template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.RetemplateDesign(ctx, args[0])
				if err != nil {
					return err
				}
				return printProject(v)
			})
		},
	}
}

func projectConstructionCmd() *cobra.Command {
	var finish string
	cmd := &cobra.Command{
		Use:   "construction <project-id> <percent>",
		Short: "Record reported construction progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("percent: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.SetConstructionProgress(ctx, args[0], pct, finish)
				if err != nil {
					return err
				}
				return printProject(v)
			})
		},
	}
	cmd.Flags().StringVar(&finish, "finish", "", "construction actual finish")
	return cmd
}
