package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"slotswap/internal/app"
	"slotswap/internal/auth"
	"slotswap/internal/config"
	"slotswap/internal/domain"
	"slotswap/internal/engine"
	"slotswap/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "swp",
	Short: "Slotswap CLI",
	Long: `Slotswap lets parties trade calendar slots.
Core concepts:
- Party: someone who owns slots; commands act as the party given by --party.
- Slot: a time range with a status. locked is private, offered is listed on the
  marketplace, reserved is held by a pending swap request.
- Swap request: an offer of one of your slots for someone else's offered slot.
  Both slots are reserved until the other party accepts (owners are exchanged)
  or rejects (both slots go back to offered).`,
	SilenceUsage: true,
}

// stdout receives command output.
var stdout io.Writer = os.Stdout

func main() {
	setupRoot()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupRoot() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
}

func initConfig() {
	viper.SetEnvPrefix("SLOTSWAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", config.DefaultPath, "config file")
	flags.StringP("workspace", "w", "", "workspace directory (sqlite driver)")
	flags.String("driver", "", "storage driver: sqlite or postgres")
	flags.String("dsn", "", "postgres connection string")
	flags.String("party", "", "acting party id")
	flags.Bool("json", false, "output JSON")
	flags.BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"config", "workspace", "driver", "dsn", "party", "json", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(partyCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(slotCmd())
	rootCmd.AddCommand(marketCmd())
	rootCmd.AddCommand(swapCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.Sample()), 0o644); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			log, err := newLogger(zapcore.InfoLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			rt, err := app.Open(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret: cfg.Auth.JWTSecret,
					TokenTTL:  cfg.Auth.TokenTTL,
					DevLogin:  cfg.Auth.DevLogin,
				},
				CORSOrigins: cfg.Server.CORSOrigins,
				Logger:      log.Named("http"),
			})
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				log.Warn("auth.jwt_secret is empty; only API keys will authenticate")
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving",
				zap.String("addr", cfg.Server.Addr),
				zap.String("base_path", cfg.Server.BasePath),
				zap.String("driver", cfg.Storage.Driver),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

func partyCmd() *cobra.Command {
	party := &cobra.Command{Use: "party", Short: "Manage parties"}
	party.AddCommand(partyCreateCmd())
	party.AddCommand(partyShowCmd())
	return party
}

func partyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a party",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RegisterParty(ctx, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func partyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [party-id]",
		Short: "Show a party (defaults to --party)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := viper.GetString("party")
			if len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return fmt.Errorf("party id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetParty(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func keyCmd() *cobra.Command {
	key := &cobra.Command{Use: "key", Short: "Manage API keys"}
	key.AddCommand(keyIssueCmd())
	return key
}

func keyIssueCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an API key for --party",
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raw, key, err := e.IssueAPIKey(ctx, partyID, name)
				if err != nil {
					return err
				}
				out := map[string]any{"id": key.ID, "party_id": key.PartyID, "name": key.Name, "key": raw}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Fprintf(stdout, "API key for %s (shown once): %s\n", key.PartyID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "cli", "key label")
	return cmd
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Bearer tokens"}
	tok.AddCommand(tokenMintCmd())
	return tok
}

func tokenMintCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a bearer token for --party using auth.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetParty(ctx, partyID)
				if err != nil {
					return err
				}
				token, expires, err := auth.IssueToken(cfg.Auth.JWTSecret, p.ID, p.DisplayName, time.Now(), ttl)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"token": token, "expires_at": expires})
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}

func slotCmd() *cobra.Command {
	slot := &cobra.Command{Use: "slot", Short: "Manage your slots"}
	slot.AddCommand(slotCreateCmd())
	slot.AddCommand(slotListCmd())
	slot.AddCommand(slotUpdateCmd())
	slot.AddCommand(slotDeleteCmd())
	return slot
}

func slotCreateCmd() *cobra.Command {
	var title, start, end, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			opts := engine.SlotCreateOptions{OwnerID: partyID, Title: title}
			if opts.Start, err = parseTime(start); err != nil {
				return err
			}
			if opts.End, err = parseTime(end); err != nil {
				return err
			}
			if opts.Status, err = domain.ParseSlotStatus(status); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSlot(ctx, opts)
				if err != nil {
					return err
				}
				return printSlots([]domain.Slot{s})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "slot title")
	cmd.Flags().StringVar(&start, "start", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end time (RFC3339)")
	cmd.Flags().StringVar(&status, "status", "locked", "locked or offered")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func slotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMySlots(ctx, partyID)
				if err != nil {
					return err
				}
				return printSlots(items)
			})
		},
	}
}

func slotUpdateCmd() *cobra.Command {
	var title, start, end, status string
	cmd := &cobra.Command{
		Use:   "update <slot-id>",
		Short: "Update a slot you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			var patch engine.SlotPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("start") {
				t, err := parseTime(start)
				if err != nil {
					return err
				}
				patch.Start = &t
			}
			if cmd.Flags().Changed("end") {
				t, err := parseTime(end)
				if err != nil {
					return err
				}
				patch.End = &t
			}
			if cmd.Flags().Changed("status") {
				st, err := domain.ParseSlotStatus(status)
				if err != nil {
					return err
				}
				patch.Status = &st
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.UpdateSlot(ctx, partyID, args[0], patch)
				if err != nil {
					return err
				}
				return printSlots([]domain.Slot{s})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "slot title")
	cmd.Flags().StringVar(&start, "start", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end time (RFC3339)")
	cmd.Flags().StringVar(&status, "status", "", "locked or offered")
	return cmd
}

func slotDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <slot-id>",
		Short: "Delete a slot you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteSlot(ctx, partyID, args[0])
			})
		},
	}
}

func marketCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "List slots other parties have offered",
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMarketplace(ctx, partyID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Start", "End", "Owner"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Title, formatTime(m.Start), formatTime(m.End), m.OwnerName})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func swapCmd() *cobra.Command {
	swap := &cobra.Command{Use: "swap", Short: "Propose and answer swap requests"}
	swap.AddCommand(swapProposeCmd())
	swap.AddCommand(swapRespondCmd())
	swap.AddCommand(swapListCmd("incoming", "Swap requests addressed to you", engine.Engine.ListIncoming))
	swap.AddCommand(swapListCmd("outgoing", "Swap requests you made", engine.Engine.ListOutgoing))
	swap.AddCommand(swapShowCmd())
	return swap
}

func swapProposeCmd() *cobra.Command {
	var mine, theirs string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Offer one of your slots for an offered slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Propose(ctx, partyID, mine, theirs)
				if err != nil {
					return err
				}
				return printProposals([]domain.ProposalDetails{d})
			})
		},
	}
	cmd.Flags().StringVar(&mine, "mine", "", "your slot id")
	cmd.Flags().StringVar(&theirs, "theirs", "", "their offered slot id")
	_ = cmd.MarkFlagRequired("mine")
	_ = cmd.MarkFlagRequired("theirs")
	return cmd
}

func swapRespondCmd() *cobra.Command {
	var accept, reject bool
	cmd := &cobra.Command{
		Use:   "respond <request-id>",
		Short: "Accept or reject a swap request addressed to you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if accept == reject {
				return fmt.Errorf("exactly one of --accept or --reject is required")
			}
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Respond(ctx, partyID, args[0], accept)
				if err != nil {
					return err
				}
				return printProposals([]domain.ProposalDetails{d})
			})
		},
	}
	cmd.Flags().BoolVar(&accept, "accept", false, "accept and exchange owners")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject and release both slots")
	return cmd
}

func swapListCmd(use, short string, list func(engine.Engine, context.Context, string) ([]domain.ProposalDetails, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := list(e, ctx, partyID)
				if err != nil {
					return err
				}
				return printProposals(items)
			})
		},
	}
}

func swapShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a swap request you are part of",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := actingParty()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetProposal(ctx, partyID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

// --- helpers ---

// loadConfig reads the config file, then applies flag and SLOTSWAP_* overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if viper.IsSet("workspace") && viper.GetString("workspace") != "" {
		cfg.Storage.Workspace = viper.GetString("workspace")
	}
	if viper.IsSet("driver") && viper.GetString("driver") != "" {
		cfg.Storage.Driver = viper.GetString("driver")
	}
	if viper.IsSet("dsn") && viper.GetString("dsn") != "" {
		cfg.Storage.DSN = viper.GetString("dsn")
	}
	if secret := viper.GetString("jwt-secret"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return cfg, cfg.Validate()
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(zapcore.WarnLevel)
	if err != nil {
		return err
	}
	defer log.Sync()
	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func actingParty() (string, error) {
	id := strings.TrimSpace(viper.GetString("party"))
	if id == "" {
		return "", fmt.Errorf("--party (or SLOTSWAP_PARTY) is required")
	}
	return id, nil
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 such as 2024-03-01T09:00:00Z", v)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func printSlots(items []domain.Slot) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Start", "End", "Status"})
	for _, s := range items {
		tw.AppendRow(table.Row{s.ID, s.Title, formatTime(s.Start), formatTime(s.End), s.Status})
	}
	tw.Render()
	return nil
}

func printProposals(items []domain.ProposalDetails) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.AppendHeader(table.Row{"ID", "Status", "From", "To", "Gives", "Wants", "Created"})
	for _, d := range items {
		tw.AppendRow(table.Row{d.ID, d.Status, d.InitiatorName, d.TargetName, d.MySlot.Title, d.TheirSlot.Title, formatTime(d.CreatedAt)})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(stdout, string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
