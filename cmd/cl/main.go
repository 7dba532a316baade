package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crisisline/internal/app"
	"crisisline/internal/config"
	"crisisline/internal/db"
	"crisisline/internal/domain"
	"crisisline/internal/engine"
	"crisisline/internal/migrate"
	"crisisline/internal/repo"
	"crisisline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Crisisline CLI",
	Long: `Crisisline manages crisis planning scenarios with versioned amendments and team consensus.
Core concepts:
- Workspace: a .crisisline directory holding the database; settings live in crisisline.yml.
- Scenario: a crisis plan with a severity, affected regions and derived impact scores.
- Sequence: each owner's scenarios are lettered A, B, C ... AA, AB as they are created.
- Amendments: edits to context fields bump the semantic version and land in the change ledger.
- Classification: scenarios are ranked A/B/C with a priority score from severity and impact.
- Adjustments: company-level SEPTE sliders (five society dimensions, each pair summing to 100).
- Consensus: a team vote over an adjustment that finalizes once the quorum agrees.
- Event log: diary of changes, view with 'cl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CRISISLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	rootCmd.PersistentFlags().String("company", "", "company id for company-scoped commands")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("company", rootCmd.PersistentFlags().Lookup("company"))
}

func registerCommands() {
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(analyticsCmd())
	rootCmd.AddCommand(companyCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(adjustmentCmd())
	rootCmd.AddCommand(consensusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func scenarioCmd() *cobra.Command {
	sc := &cobra.Command{
		Use:   "scenario",
		Short: "Manage crisis scenarios",
		Long:  "Scenarios carry a crisis type, severity and affected regions. Creating one allocates the next sequence letter, derives impact sub-scores and classifies it A/B/C.",
	}
	sc.AddCommand(scenarioCreateCmd())
	sc.AddCommand(scenarioListCmd())
	sc.AddCommand(scenarioShowCmd())
	sc.AddCommand(scenarioAmendCmd())
	sc.AddCommand(scenarioImpactCmd())
	sc.AddCommand(scenarioAnalyticsCmd())
	sc.AddCommand(scenarioHistoryCmd())
	sc.AddCommand(scenarioDeleteCmd())
	return sc
}

func scenarioCreateCmd() *cobra.Command {
	var opts engine.ScenarioCreateOptions
	var regions, variables []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.UserID = viper.GetString("user-id")
			opts.ActorID = opts.UserID
			opts.AffectedRegions = regions
			opts.KeyVariables = variables
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateScenario(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "scenario title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.CrisisType, "crisis-type", "", "crisis type (pandemic, natural_disaster, economic_crisis, ...)")
	cmd.Flags().IntVar(&opts.Severity, "severity", 5, "severity level 1-10")
	cmd.Flags().StringArrayVar(&regions, "region", []string{}, "affected region (repeatable)")
	cmd.Flags().StringArrayVar(&variables, "variable", []string{}, "key variable (repeatable)")
	cmd.Flags().StringVar(&opts.AdditionalContext, "context", "", "additional context")
	cmd.Flags().StringVar(&opts.Stakeholders, "stakeholders", "", "stakeholders")
	cmd.Flags().StringVar(&opts.Timeline, "timeline", "", "timeline")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("crisis-type")
	return cmd
}

func scenarioListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListScenarios(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "ID", "Title", "Type", "Sev", "Class", "Impact", "Version"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.SequenceLetter, s.ID, s.Title, s.CrisisType, s.Severity, s.ABCClassification, s.CalculatedTotalImpact, s.VersionNumber})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func scenarioShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetScenario(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func scenarioAmendCmd() *cobra.Command {
	var regions, variables []string
	var additionalContext, stakeholders, timeline string
	cmd := &cobra.Command{
		Use:   "amend <id>",
		Short: "Amend scenario context fields",
		Long:  "Only flags you pass are changed. Region or variable changes bump the minor version, the rest bump the patch version.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ScenarioAmendOptions{
				ID:      args[0],
				UserID:  viper.GetString("user-id"),
				ActorID: viper.GetString("user-id"),
			}
			if cmd.Flags().Changed("region") {
				opts.AffectedRegions = &regions
			}
			if cmd.Flags().Changed("variable") {
				opts.KeyVariables = &variables
			}
			if cmd.Flags().Changed("context") {
				opts.AdditionalContext = &additionalContext
			}
			if cmd.Flags().Changed("stakeholders") {
				opts.Stakeholders = &stakeholders
			}
			if cmd.Flags().Changed("timeline") {
				opts.Timeline = &timeline
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AmendScenario(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringArrayVar(&regions, "region", []string{}, "replacement affected regions (repeatable)")
	cmd.Flags().StringArrayVar(&variables, "variable", []string{}, "replacement key variables (repeatable)")
	cmd.Flags().StringVar(&additionalContext, "context", "", "additional context")
	cmd.Flags().StringVar(&stakeholders, "stakeholders", "", "stakeholders")
	cmd.Flags().StringVar(&timeline, "timeline", "", "timeline")
	return cmd
}

func scenarioImpactCmd() *cobra.Command {
	var economic, social, environmental float64
	cmd := &cobra.Command{
		Use:   "impact <id>",
		Short: "Set impact sub-scores directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ManualImpactOptions{
				ID:      args[0],
				UserID:  viper.GetString("user-id"),
				ActorID: viper.GetString("user-id"),
			}
			if cmd.Flags().Changed("economic") {
				opts.Economic = &economic
			}
			if cmd.Flags().Changed("social") {
				opts.Social = &social
			}
			if cmd.Flags().Changed("environmental") {
				opts.Environmental = &environmental
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ManualImpactUpdate(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().Float64Var(&economic, "economic", 0, "economic impact 0-100")
	cmd.Flags().Float64Var(&social, "social", 0, "social impact 0-100")
	cmd.Flags().Float64Var(&environmental, "environmental", 0, "environmental impact 0-100")
	return cmd
}

func scenarioAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics <id>",
		Short: "Per-scenario analytics rollup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ScenarioAnalytics(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func scenarioHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the change ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetScenario(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s.ChangeHistory)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Action", "Field", "Old", "New", "By"})
				for _, rec := range s.ChangeHistory {
					tw.AppendRow(table.Row{rec.Timestamp, rec.Action, rec.Field, deref(rec.OldValue), deref(rec.NewValue), rec.ModifiedBy})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func scenarioDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteScenario(ctx, args[0], userID, userID)
			})
		},
	}
	return cmd
}

func analyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Aggregate analytics over your scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.OwnerAnalytics(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func companyCmd() *cobra.Command {
	co := &cobra.Command{Use: "company", Short: "Manage companies"}
	co.AddCommand(companyCreateCmd())
	co.AddCommand(companyListCmd())
	co.AddCommand(companyShowCmd())
	co.AddCommand(companyUpdateCmd())
	co.AddCommand(companyDeleteCmd())
	return co
}

func companyUpdateCmd() *cobra.Command {
	var name, industry, description string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateCompany(ctx, args[0], name, industry, description, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&industry, "industry", "", "industry")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func companyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteCompany(ctx, args[0], viper.GetString("user-id"))
			})
		},
	}
	return cmd
}

func companyCreateCmd() *cobra.Command {
	var name, industry, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCompany(ctx, name, industry, description, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&industry, "industry", "", "industry")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func companyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCompanies(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func companyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetCompany(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func teamCmd() *cobra.Command {
	tm := &cobra.Command{Use: "team", Short: "Manage teams"}
	tm.AddCommand(teamCreateCmd())
	tm.AddCommand(teamListCmd())
	return tm
}

func teamCreateCmd() *cobra.Command {
	var name, leadID string
	var members []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTeam(ctx, companyID, name, leadID, members, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "team name")
	cmd.Flags().StringVar(&leadID, "lead", "", "team lead user id")
	cmd.Flags().StringArrayVar(&members, "member", []string{}, "member user id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTeams(ctx, companyID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func adjustmentCmd() *cobra.Command {
	adj := &cobra.Command{
		Use:   "adjustment",
		Short: "Manage SEPTE scenario adjustments",
		Long:  "Adjustments hold ten SEPTE percentages in five opposing pairs. Each pair must sum to 100; the engine derives a risk level and narrative analysis from the crisis-side values.",
	}
	adj.AddCommand(adjustmentCreateCmd())
	adj.AddCommand(adjustmentListCmd())
	adj.AddCommand(adjustmentShowCmd())
	adj.AddCommand(adjustmentUpdateCmd())
	return adj
}

func parseSepteSettings(raw string) (domain.SepteSettings, error) {
	var s domain.SepteSettings
	if raw == "" {
		return s, fmt.Errorf("--settings-json required")
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return s, fmt.Errorf("invalid settings json: %w", err)
	}
	return s, nil
}

func adjustmentCreateCmd() *cobra.Command {
	var name, scenarioID, settingsJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an adjustment",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			settings, err := parseSepteSettings(settingsJSON)
			if err != nil {
				return err
			}
			opts := engine.AdjustmentOptions{
				CompanyID:      companyID,
				AdjustmentName: name,
				Settings:       settings,
				ActorID:        viper.GetString("user-id"),
			}
			if scenarioID != "" {
				opts.ScenarioID = &scenarioID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAdjustment(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "adjustment name")
	cmd.Flags().StringVar(&scenarioID, "scenario", "", "linked scenario id")
	cmd.Flags().StringVar(&settingsJSON, "settings-json", "", "SEPTE settings JSON")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("settings-json")
	return cmd
}

func adjustmentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List adjustments",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAdjustments(ctx, companyID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Risk", "Scenario", "Updated"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.AdjustmentName, a.RiskLevel, deref(a.ScenarioID), a.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func adjustmentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an adjustment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetAdjustment(ctx, args[0], companyID)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func adjustmentUpdateCmd() *cobra.Command {
	var name, scenarioID, settingsJSON string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an adjustment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			settings, err := parseSepteSettings(settingsJSON)
			if err != nil {
				return err
			}
			opts := engine.AdjustmentOptions{
				ID:             args[0],
				CompanyID:      companyID,
				AdjustmentName: name,
				Settings:       settings,
				ActorID:        viper.GetString("user-id"),
			}
			if scenarioID != "" {
				opts.ScenarioID = &scenarioID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAdjustment(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "adjustment name")
	cmd.Flags().StringVar(&scenarioID, "scenario", "", "linked scenario id")
	cmd.Flags().StringVar(&settingsJSON, "settings-json", "", "SEPTE settings JSON")
	_ = cmd.MarkFlagRequired("settings-json")
	return cmd
}

func consensusCmd() *cobra.Command {
	cons := &cobra.Command{
		Use:   "consensus",
		Short: "Manage consensus rounds",
		Long:  "A consensus round snapshots an adjustment's settings and collects agreements from a team roster. It finalizes once the configured quorum percentage agrees.",
	}
	cons.AddCommand(consensusCreateCmd())
	cons.AddCommand(consensusListCmd())
	cons.AddCommand(consensusShowCmd())
	cons.AddCommand(consensusAgreeCmd())
	return cons
}

func consensusCreateCmd() *cobra.Command {
	var adjustmentID, teamID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a consensus round",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			opts := engine.ConsensusCreateOptions{
				CompanyID:     companyID,
				AdjustmentID:  adjustmentID,
				ConsensusName: name,
				ActorID:       viper.GetString("user-id"),
			}
			if teamID != "" {
				opts.TeamID = &teamID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateConsensus(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&adjustmentID, "adjustment", "", "adjustment id")
	cmd.Flags().StringVar(&teamID, "team", "", "team id (omit for a solo round)")
	cmd.Flags().StringVar(&name, "name", "", "consensus name")
	_ = cmd.MarkFlagRequired("adjustment")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func consensusListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List consensus rounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListConsensus(ctx, companyID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Agreed", "Roster", "Percent", "Reached"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.ConsensusName, len(c.AgreedBy), c.TotalTeamMembers, c.ConsensusPercentage, c.ConsensusReached})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func consensusShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a consensus round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetConsensus(ctx, args[0], companyID)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func consensusAgreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agree <id>",
		Short: "Agree to a consensus round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID := viper.GetString("company")
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AgreeConsensus(ctx, args[0], companyID, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate crisisline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, "", evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "When", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyRevokeCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		Long:  "Prints the key once. Only its hash is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := "clk_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("user-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "key": raw})
				}
				fmt.Printf("API key %s created for %s\n%s\n", key.ID, key.ActorID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Actor", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.ActorID, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("CRISISLINE_JWT_SECRET"),
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = cfg.Auth.JWTSecret
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CRISISLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Crisisline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveUserAndConfig(ctx, workspace, viper.GetString("user-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
