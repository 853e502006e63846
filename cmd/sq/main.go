package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sidequest/internal/app"
	"sidequest/internal/config"
	"sidequest/internal/db"
	"sidequest/internal/domain"
	"sidequest/internal/engine"
	"sidequest/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "sq",
	Short: "Sidequest CLI",
	Long: `Sidequest tracks adventurers, the quests assigned to them and the experience they earn.
- Adventurers belong to a user and start at level 1 with 0 experience.
- Completing a quest awards its experience reward once; repeating the call is a no-op.
- Reaching level*100 experience levels the adventurer up; leftover experience is discarded.
- Reverting a completion removes the ledger row but keeps experience and level.
- The CLI acts as a trusted operator and skips ownership checks.`,
	SilenceUsage: true,
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SIDEQUEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log to stderr")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(adventurerCmd())
	rootCmd.AddCommand(questCmd())
	rootCmd.AddCommand(recapCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default sidequest.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server with webhooks and daily recaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), app.Options{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			fmt.Printf("Serving Sidequest API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, a.Config.Server.BasePath)
			return a.Serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			cfg.Server.JWTSecret = redacted(cfg.Server.JWTSecret)
			return printJSON(cfg)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate sidequest.yml and environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}
	usr.AddCommand(userRegisterCmd())
	usr.AddCommand(userListCmd())
	usr.AddCommand(userDeleteCmd())
	return usr
}

func userRegisterCmd() *cobra.Command {
	var opts engine.RegisterOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = viper.GetString("password")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.RegisterUser(ctx, opts)
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Username, "username", "", "username")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (or SIDEQUEST_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printUsers(users)
			})
		},
	}
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username|id>",
		Short: "Delete a user with all adventurers and quests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := resolveUser(ctx, a.Engine.Repo, args[0])
				if err != nil {
					return err
				}
				if err := a.Engine.DeleteUser(ctx, u.ID); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": u.ID})
				}
				fmt.Println("deleted", u.Username)
				return nil
			})
		},
	}
}

func adventurerCmd() *cobra.Command {
	adv := &cobra.Command{Use: "adventurer", Aliases: []string{"adv"}, Short: "Manage adventurers"}
	adv.AddCommand(adventurerCreateCmd())
	adv.AddCommand(adventurerListCmd())
	adv.AddCommand(adventurerShowCmd())
	return adv
}

func adventurerCreateCmd() *cobra.Command {
	var owner, name, advType string
	var lvl, xp int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create adventurer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := resolveUser(ctx, a.Engine.Repo, owner)
				if err != nil {
					return err
				}
				opts := engine.AdventurerCreateOptions{OwnerUserID: u.ID, Name: name, Type: advType}
				if cmd.Flags().Changed("level") {
					opts.Level = &lvl
				}
				if cmd.Flags().Changed("experience") {
					opts.Experience = &xp
				}
				created, err := a.Engine.CreateAdventurer(ctx, opts)
				if err != nil {
					return err
				}
				return printAdventurers([]domain.Adventurer{created})
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner username or id")
	cmd.Flags().StringVar(&name, "name", "", "adventurer name")
	cmd.Flags().StringVar(&advType, "type", "", "adventurer type")
	cmd.Flags().IntVar(&lvl, "level", 1, "starting level")
	cmd.Flags().IntVar(&xp, "experience", 0, "starting experience")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func adventurerListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List adventurers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ownerID := ""
				if owner != "" {
					u, err := resolveUser(ctx, a.Engine.Repo, owner)
					if err != nil {
						return err
					}
					ownerID = u.ID
				}
				items, err := a.Engine.ListAdventurers(ctx, ownerID)
				if err != nil {
					return err
				}
				return printAdventurers(items)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner username or id")
	return cmd
}

func adventurerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show adventurer progress and completed quests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				adv, err := a.Engine.GetAdventurer(ctx, args[0], "")
				if err != nil {
					return err
				}
				d, err := a.Engine.Describe(ctx, adv)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("%s (%s) level %d\n", d.Name, d.Type, d.Level)
				fmt.Printf("Experience: %d/%d (%.1f%%)\n", d.Experience, d.ExperienceForNextLevel, d.Percentage)
				fmt.Printf("Completed quests: %d\n", d.CompletedQuestsCount)
				if len(d.CompletedQuests) == 0 {
					return nil
				}
				tw := newTable(table.Row{"Quest", "Title", "XP", "Completed At"})
				for _, q := range d.CompletedQuests {
					tw.AppendRow(table.Row{q.QuestID, q.Title, q.ExperienceAwarded, q.CompletedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func questCmd() *cobra.Command {
	q := &cobra.Command{Use: "quest", Short: "Manage quests"}
	q.AddCommand(questCreateCmd())
	q.AddCommand(questListCmd())
	q.AddCommand(questCompleteCmd())
	q.AddCommand(questRevertCmd())
	return q
}

func questCreateCmd() *cobra.Command {
	var adventurerID, title string
	var reward int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a quest assigned to an adventurer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts := engine.QuestCreateOptions{AdventurerID: adventurerID, Title: title}
				if cmd.Flags().Changed("reward") {
					opts.Reward = &reward
				}
				created, err := a.Engine.CreateQuest(ctx, opts)
				if err != nil {
					return err
				}
				return printQuests([]domain.Quest{created})
			})
		},
	}
	cmd.Flags().StringVar(&adventurerID, "adventurer", "", "adventurer id")
	cmd.Flags().StringVar(&title, "title", "", "quest title")
	cmd.Flags().IntVar(&reward, "reward", 0, "experience reward (defaults to game.default_reward)")
	_ = cmd.MarkFlagRequired("adventurer")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func questListCmd() *cobra.Command {
	var f repo.QuestFilters
	var owner string
	var open bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if owner != "" {
					u, err := resolveUser(ctx, a.Engine.Repo, owner)
					if err != nil {
						return err
					}
					f.OwnerUserID = u.ID
				}
				if open {
					completed := false
					f.Completed = &completed
				}
				items, err := a.Engine.ListQuests(ctx, f, "")
				if err != nil {
					return err
				}
				return printQuests(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.AdventurerID, "adventurer", "", "adventurer id")
	cmd.Flags().StringVar(&owner, "owner", "", "owner username or id")
	cmd.Flags().BoolVar(&open, "open", false, "only quests not completed yet")
	return cmd
}

func questCompleteCmd() *cobra.Command {
	var reward int
	cmd := &cobra.Command{
		Use:   "complete <adventurer-id> <quest-id>",
		Short: "Complete a quest and award its experience once",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts := engine.CompleteQuestOptions{AdventurerID: args[0], QuestID: args[1]}
				if cmd.Flags().Changed("reward") {
					opts.ExperienceReward = &reward
				}
				res, err := a.Engine.CompleteQuest(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				switch {
				case !res.WasNewCompletion:
					fmt.Println("already completed; nothing changed")
				case res.LeveledUp:
					fmt.Printf("level up! %s: %d -> %d\n", res.Adventurer.Name, res.OldLevel, res.Adventurer.Level)
				default:
					fmt.Printf("%s now has %d experience at level %d\n", res.Adventurer.Name, res.Adventurer.Experience, res.Adventurer.Level)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&reward, "reward", 0, "override the quest's experience reward")
	return cmd
}

func questRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <adventurer-id> <quest-id>",
		Short: "Remove a completion without taking experience back",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				removed, err := a.Engine.RevertCompletion(ctx, engine.RevertOptions{AdventurerID: args[0], QuestID: args[1]})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"removed": removed})
				}
				if removed {
					fmt.Println("completion removed")
				} else {
					fmt.Println("no completion to remove")
				}
				return nil
			})
		},
	}
}

func recapCmd() *cobra.Command {
	rc := &cobra.Command{Use: "recap", Short: "Daily recaps"}
	var date string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show recaps for a UTC day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := recapDay(date)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				recaps, err := a.Engine.Recaps(ctx, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recaps)
				}
				tw := newTable(table.Row{"User", "Adventurer", "Level", "Quests", "XP"})
				for _, r := range recaps {
					for _, entry := range r.Adventurers {
						tw.AppendRow(table.Row{r.Username, entry.AdventurerName, entry.Level, entry.QuestCount, entry.ExperienceGain})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	send := &cobra.Command{
		Use:   "send",
		Short: "Send recap notifications for a UTC day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := recapDay(date)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Engine.SendDailyRecaps(ctx, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"day": day.Format("2006-01-02"), "sent": n})
				}
				fmt.Printf("queued %d recap(s) for %s\n", n, day.Format("2006-01-02"))
				return nil
			})
		},
	}
	for _, c := range []*cobra.Command{show, send} {
		c.Flags().StringVar(&date, "date", "", "UTC day as YYYY-MM-DD (defaults to yesterday)")
		rc.AddCommand(c)
	}
	return rc
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	var user string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if user != "" {
					u, err := resolveUser(ctx, a.Engine.Repo, user)
					if err != nil {
						return err
					}
					f.UserID = u.ID
				}
				events, err := a.Engine.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&user, "user", "", "username or id")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Quiet:     !viper.GetBool("verbose"),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// resolveUser accepts either a username or a user id.
func resolveUser(ctx context.Context, r repo.Repo, ref string) (domain.User, error) {
	ref = strings.TrimSpace(ref)
	u, err := r.GetUserByUsername(ctx, ref)
	if err == nil || !errors.Is(err, repo.ErrNotFound) {
		return u, err
	}
	u, err = r.GetUser(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		return u, fmt.Errorf("user %q not found", ref)
	}
	return u, err
}

func recapDay(date string) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		start, _ := engine.RecapWindow(time.Now())
		return start, nil
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	return day, nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printUsers(users []domain.User) error {
	if viper.GetBool("json") {
		return printJSON(users)
	}
	tw := newTable(table.Row{"ID", "Username", "Email", "Created At"})
	for _, u := range users {
		tw.AppendRow(table.Row{u.ID, u.Username, u.Email, u.CreatedAt})
	}
	tw.Render()
	return nil
}

func printAdventurers(items []domain.Adventurer) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Name", "Type", "Level", "XP", "Owner"})
	for _, a := range items {
		tw.AppendRow(table.Row{a.ID, a.Name, a.Type, a.Level, a.Experience, a.OwnerUserID})
	}
	tw.Render()
	return nil
}

func printQuests(items []domain.Quest) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Title", "Adventurer", "Reward", "Completed"})
	for _, q := range items {
		tw.AppendRow(table.Row{q.ID, q.Title, q.AdventurerID, q.ExperienceReward, q.Completed})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
