package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/formkeeper/formkeeper/internal/config"
	"github.com/formkeeper/formkeeper/internal/form"
	"github.com/formkeeper/formkeeper/internal/loader"
	"github.com/formkeeper/formkeeper/internal/schema"
	"github.com/formkeeper/formkeeper/internal/store"
	"github.com/formkeeper/formkeeper/internal/types"
)

const Version = "0.1.0"

var runCmd = &cobra.Command{
	Use:   "run <form-document.json>",
	Short: "Run a form document against change events from stdin",
	Long: `Run loads a form document (fields, rules, initial state) and feeds it
change events read from stdin, one JSON object per line. After each
event the committed state, attribute overlay, and validation errors are
printed to stdout as one JSON object per line.`,
	Args: cobra.ExactArgs(1),
	RunE: runForm,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("watch", false, "hot-reload the form document on change")
	runCmd.Flags().Bool("strict", false, "fail on the first rule error instead of degrading")
	runCmd.Flags().Int("cascade-depth", -1, "override cascade depth (0 disables cascading)")
	runCmd.Flags().Bool("restore", false, "rehydrate state and rules from the store before starting")
}

// cycleOutput is the per-event line written to stdout.
type cycleOutput struct {
	Seq           int                    `json:"seq"`
	State         types.FormState        `json:"state"`
	Attributes    types.AttributeOverlay `json:"attributes,omitempty"`
	FieldErrors   map[string]string      `json:"fieldErrors,omitempty"`
	RulesExecuted []string               `json:"rulesExecuted,omitempty"`
	Errors        []string               `json:"errors,omitempty"`
}

func runForm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("strict") {
		cfg.Strict, _ = cmd.Flags().GetBool("strict")
	}
	if depth, _ := cmd.Flags().GetInt("cascade-depth"); depth >= 0 {
		cfg.CascadeDepth = depth
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}

	doc, err := loader.Load(args[0])
	if err != nil {
		return err
	}
	if doc.FormID != "" {
		cfg.FormID = doc.FormID
	}

	var st *store.Store
	if cfg.DatabaseURL != "" {
		database, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		if err := store.MigrateUp(database); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		st, err = store.New(database)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
	}

	initial := doc.Initial
	ruleDefs := doc.Rules
	if restore, _ := cmd.Flags().GetBool("restore"); restore {
		if st == nil {
			return fmt.Errorf("--restore requires --db-url or FK_ENGINE_DATABASE_URL")
		}
		restoredState, restoredRules, err := restoreForm(ctx, st, cfg.FormID)
		if err != nil {
			return err
		}
		if restoredState != nil {
			initial = restoredState
		}
		// Stored rules register first; same-named document rules win via
		// last-write-wins registration.
		ruleDefs = append(restoredRules, doc.Rules...)
	}

	var persister form.Persister
	if st != nil {
		persister = st
	}

	handler, err := form.New(form.Config{
		Fields:  doc.Fields,
		Rules:   ruleDefs,
		Initial: initial,
		Options: form.Options{
			HistoryLimit: cfg.HistoryLimit,
			QueueSize:    cfg.QueueSize,
			JobTimeout:   cfg.JobTimeout,
			CascadeDepth: cfg.CascadeDepth,
			Strict:       cfg.Strict,
			Store:        persister,
			FormID:       cfg.FormID,
			OnError: func(err error, _ *types.ExecutionContext) {
				log.Printf("rule error: %v", err)
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}
	defer handler.Close()

	if st != nil {
		persistRules(ctx, st, cfg.FormID, doc.Rules)
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		w, err := loader.Watch(args[0], cfg.WatchDebounce, func(doc *loader.Document) {
			reloadRules(ctx, handler, st, cfg.FormID, doc)
		})
		if err != nil {
			return fmt.Errorf("failed to watch form document: %w", err)
		}
		defer w.Close()
	}

	log.Printf("FormKeeper v%s: form %q loaded, reading change events from stdin", Version, cfg.FormID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	out := json.NewEncoder(os.Stdout)
	seq := 0

	for {
		select {
		case <-sigChan:
			log.Println("Shutting down gracefully...")
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("stdin read failed: %w", err)
				}
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			seq++

			res, err := handler.HandleRawChange(ctx, []byte(line))
			if err != nil && res == nil {
				log.Printf("event %d rejected: %v", seq, err)
				continue
			}
			if err != nil {
				// Strict mode: the cycle ran, report and stop.
				printCycle(out, seq, res)
				return err
			}
			printCycle(out, seq, res)
		}
	}
}

func printCycle(out *json.Encoder, seq int, res *form.ChangeResult) {
	line := cycleOutput{
		Seq:           seq,
		State:         res.State,
		Attributes:    res.Attributes,
		FieldErrors:   res.FieldErrors,
		RulesExecuted: res.RulesExecuted,
	}
	for _, err := range res.Errors {
		line.Errors = append(line.Errors, err.Error())
	}
	if err := out.Encode(line); err != nil {
		log.Printf("failed to write cycle output: %v", err)
	}
}

// restoreForm rehydrates the latest persisted snapshot and the stored
// rule set for a form. A missing snapshot is not an error: the document's
// initial state applies.
func restoreForm(ctx context.Context, st *store.Store, formID string) (types.FormState, []types.RuleDefinition, error) {
	var state types.FormState
	snap, err := st.LatestSnapshot(ctx, formID)
	switch {
	case err == nil:
		state = snap.State
		log.Printf("restored snapshot %s (%s) for form %q", snap.ID, snap.CreatedAt.Format(time.RFC3339), formID)
	case errors.Is(err, store.ErrSnapshotNotFound):
		log.Printf("no stored snapshot for form %q, using the document's initial state", formID)
	default:
		return nil, nil, fmt.Errorf("failed to restore snapshot: %w", err)
	}

	stored, err := st.LoadRules(ctx, formID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load stored rules: %w", err)
	}
	if len(stored) > 0 {
		log.Printf("restored %d stored rules for form %q", len(stored), formID)
	}
	return state, stored, nil
}

// persistRules upserts the document's rules so the form can be rebuilt
// from the database alone. Per-rule failures degrade to a log line.
func persistRules(ctx context.Context, st *store.Store, formID string, defs []types.RuleDefinition) {
	for _, rule := range defs {
		if err := st.SaveRule(ctx, formID, rule); err != nil {
			log.Printf("failed to persist rule %q: %v", rule.Name, err)
		}
	}
}

// reloadRules swaps in a hot-reloaded document's rule set: re-registers
// current rules, unregisters deleted ones, and mirrors both into the
// store. Schema changes require a restart.
func reloadRules(ctx context.Context, handler *form.Handler, st *store.Store, formID string, doc *loader.Document) {
	removed, errs := handler.ReloadRules(doc.Fields, doc.Rules)
	for _, err := range errs {
		log.Printf("reload: %v", err)
	}

	if st != nil {
		persistRules(ctx, st, formID, doc.Rules)
		for _, name := range removed {
			// Modifier rules are derived from the field tree, never stored.
			if strings.HasPrefix(name, schema.ModifierRulePrefix) {
				continue
			}
			if err := st.DeleteRule(ctx, formID, name); err != nil {
				log.Printf("reload: failed to delete stored rule %q: %v", name, err)
			}
		}
	}

	log.Printf("reload: %d rules registered, %d removed (schema changes require restart)", len(doc.Rules), len(removed))
}
