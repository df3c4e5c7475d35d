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

	"pathway/internal/app"
	"pathway/internal/db"
	"pathway/internal/domain"
	"pathway/internal/kb"
	"pathway/internal/repo"
	"pathway/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pw",
	Short: "Pathway CLI",
	Long: `Pathway matches applicant profiles against US visa requirements and
recommends multi-step immigration paths.

- Profile: six 0-5 attributes (education, work experience, field of work,
  citizenship, investment, language) plus a current visa and a goal.
- Catalog: the visa knowledge base with per-visa requirement thresholds and
  the permitted transitions between statuses.
- Score: percentage fit of a profile against one visa; bands are
  recommended / available / locked.
- Recommendation: the single best path of transitions from the current
  status to a visa bearing the goal tag, with a confidence level.
- Event log: diary of profile changes and computed recommendations, view
  with 'pw log tail'.`,
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
	viper.SetEnvPrefix("PATHWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("config", "", "path to pathway.yml (default <workspace>/pathway.yml)")
	rootCmd.PersistentFlags().String("catalog", "", "path to a visa catalog YAML (default embedded catalog)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("catalog", rootCmd.PersistentFlags().Lookup("catalog"))
}

func registerCommands() {
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(visaCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(recommendCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// attributeFlags collects the profile attribute flags shared by several
// commands.
type attributeFlags struct {
	education      int
	workExperience int
	fieldOfWork    int
	citizenship    int
	investment     int
	language       int
	currentVisa    string
	goal           string
}

func (f *attributeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.education, "education", 0, "education level (0-5)")
	cmd.Flags().IntVar(&f.workExperience, "work-experience", 0, "work experience (0-5)")
	cmd.Flags().IntVar(&f.fieldOfWork, "field-of-work", 0, "field of work fit (0-5)")
	cmd.Flags().IntVar(&f.citizenship, "citizenship", 0, "citizenship factor (0-5)")
	cmd.Flags().IntVar(&f.investment, "investment", 0, "investment capacity (0-5)")
	cmd.Flags().IntVar(&f.language, "language", 0, "language proficiency (0-5)")
	cmd.Flags().StringVar(&f.currentVisa, "current-visa", "", "current visa id (empty means no visa)")
	cmd.Flags().StringVar(&f.goal, "goal", "", "immigration goal tag")
}

func (f *attributeFlags) attributes() domain.ProfileAttributes {
	attrs := domain.ProfileAttributes{
		Education:       f.education,
		WorkExperience:  f.workExperience,
		FieldOfWork:     f.fieldOfWork,
		Citizenship:     f.citizenship,
		Investment:      f.investment,
		Language:        f.language,
		ImmigrationGoal: f.goal,
	}
	if f.currentVisa != "" {
		attrs.CurrentVisaID = &f.currentVisa
	}
	return attrs
}

func profileCmd() *cobra.Command {
	prof := &cobra.Command{
		Use:   "profile",
		Short: "Manage stored profiles",
	}
	prof.AddCommand(profileCreateCmd())
	prof.AddCommand(profileListCmd())
	prof.AddCommand(profileShowCmd())
	prof.AddCommand(profileUpdateCmd())
	prof.AddCommand(profileDeleteCmd())
	prof.AddCommand(profileRecommendCmd())
	prof.AddCommand(profileHistoryCmd())
	return prof
}

func profileCreateCmd() *cobra.Command {
	var id, name string
	var attrs attributeFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				p, err := svc.CreateProfile(ctx, id, name, attrs.attributes(), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "profile id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	attrs.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func profileListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				items, err := svc.Repo.ListProfiles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Goal", "Current Visa", "Updated"})
				for _, p := range items {
					current := "none"
					if p.Attributes.CurrentVisaID != nil {
						current = *p.Attributes.CurrentVisaID
					}
					tw.AppendRow(table.Row{p.ID, p.Name, p.Attributes.ImmigrationGoal, current, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func profileShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				p, err := svc.Repo.GetProfile(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func profileUpdateCmd() *cobra.Command {
	var name string
	var attrs attributeFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				var namePtr *string
				if cmd.Flags().Changed("name") {
					namePtr = &name
				}
				// Attribute flags replace the stored attributes wholesale.
				var attrsPtr *domain.ProfileAttributes
				if attributeFlagsChanged(cmd) {
					a := attrs.attributes()
					attrsPtr = &a
				}
				p, err := svc.UpdateProfile(ctx, args[0], namePtr, attrsPtr, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	attrs.register(cmd)
	return cmd
}

func attributeFlagsChanged(cmd *cobra.Command) bool {
	for _, flag := range []string{"education", "work-experience", "field-of-work", "citizenship", "investment", "language", "current-visa", "goal"} {
		if cmd.Flags().Changed(flag) {
			return true
		}
	}
	return false
}

func profileDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				return svc.DeleteProfile(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func profileRecommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend <id>",
		Short: "Compute and store a recommendation for a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				_, path, found, err := svc.RecommendForProfile(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if !found {
					fmt.Println("No viable path found for this profile and goal.")
					return nil
				}
				return printPath(path)
			})
		},
		Args: cobra.ExactArgs(1),
	}
	return cmd
}

func profileHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List stored recommendations for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				items, err := svc.Repo.ListRecommendations(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 20, "number of records")
	return cmd
}

func visaCmd() *cobra.Command {
	visa := &cobra.Command{
		Use:   "visa",
		Short: "Browse the visa catalog",
	}
	visa.AddCommand(visaListCmd())
	visa.AddCommand(visaShowCmd())
	return visa
}

func visaListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				nodes := svc.Engine.KB.Nodes()
				if viper.GetBool("json") {
					return printJSON(nodes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Code", "Name", "Months", "Goal Tags"})
				for _, n := range nodes {
					tw.AppendRow(table.Row{n.ID, n.Code, n.Name, n.TypicalDurationMonths, strings.Join(n.GoalTags, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func visaShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a visa and its outgoing transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				node, ok := svc.Engine.KB.Node(args[0])
				if !ok {
					return fmt.Errorf("unknown visa id: %s", args[0])
				}
				out := map[string]any{
					"visa":        node,
					"transitions": svc.Engine.KB.Outgoing(node.ID),
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func scoreCmd() *cobra.Command {
	var visaID string
	var all bool
	var attrs attributeFlags
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a profile against one visa or the whole catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if visaID == "" && !all {
				return fmt.Errorf("--visa or --all required")
			}
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				profile := attrs.attributes()
				if all {
					scores := svc.Engine.ScoreAll(profile)
					if viper.GetBool("json") {
						return printJSON(scores)
					}
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"ID", "Code", "Match %", "Status"})
					for _, s := range scores {
						tw.AppendRow(table.Row{s.Visa.ID, s.Visa.Code, s.Score.MatchPercentage, s.Score.Status})
					}
					tw.Render()
					return nil
				}
				score, err := svc.Engine.ScoreVisa(profile, visaID)
				if err != nil {
					return err
				}
				return printJSONOrTable(score)
			})
		},
	}
	cmd.Flags().StringVar(&visaID, "visa", "", "visa id to score against")
	cmd.Flags().BoolVar(&all, "all", false, "score against every visa")
	attrs.register(cmd)
	return cmd
}

func recommendCmd() *cobra.Command {
	var attrs attributeFlags
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend a path for an ad-hoc profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				path, found, err := svc.Engine.Recommend(attrs.attributes())
				if err != nil {
					return err
				}
				if !found {
					fmt.Println("No viable path found for this profile and goal.")
					return nil
				}
				return printPath(path)
			})
		},
	}
	attrs.register(cmd)
	return cmd
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate visa catalogs",
	}
	cat.AddCommand(catalogValidateCmd())
	cat.AddCommand(catalogGoalsCmd())
	return cat
}

func catalogValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a catalog YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := kb.FromFile(filePath)
			if err != nil {
				return err
			}
			fmt.Printf("OK: %d visas, %d goal tags\n", len(base.Nodes()), len(base.GoalTags()))
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to catalog YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func catalogGoalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "List goal tags present in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				return printJSONOrTable(svc.Engine.KB.GoalTags())
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP server",
	}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				secret := uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := svc.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("API key %s created for actor %s\n", key.ID, key.ActorID)
				fmt.Printf("Secret (store it now, it is not shown again): %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				keys, err := svc.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				return svc.Repo.DeleteAPIKey(ctx, nil, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	logRoot.AddCommand(logTailCmd())
	return logRoot
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				events, err := svc.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var requireAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, svc, err := app.Bootstrap(workspace, viper.GetString("config"), viper.GetString("catalog"))
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{
				Enabled:   requireAuth,
				JWTSecret: os.Getenv("PATHWAY_JWT_SECRET"),
			}
			if requireAuth && authCfg.JWTSecret == "" {
				return fmt.Errorf("PATHWAY_JWT_SECRET is required when --auth is set")
			}
			handler, err := server.New(server.Config{Service: svc, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Pathway API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&requireAuth, "auth", false, "require bearer or API key auth")
	return cmd
}

// --- helpers ---

func withService(ctx context.Context, fn func(context.Context, app.Service) error) error {
	conn, svc, err := app.Bootstrap(viper.GetString("workspace"), viper.GetString("config"), viper.GetString("catalog"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, svc)
}

func printPath(path domain.RecommendedPath) error {
	if viper.GetBool("json") {
		return printJSON(path)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Visa", "Code", "Match %", "Status", "Months"})
	for i, s := range path.Steps {
		tw.AppendRow(table.Row{i + 1, s.VisaName, s.VisaCode, s.Score.MatchPercentage, s.Score.Status, s.EstimatedTimeMonths})
	}
	tw.Render()
	fmt.Printf("%s\nConfidence: %s, total estimate: %d months\n", path.Description, path.Confidence, path.TotalEstimatedMonths)
	return nil
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
