package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	config "github.com/avvvet/whodidichoose/configs"
	"github.com/avvvet/whodidichoose/internal/gamesvc/db"
	"github.com/avvvet/whodidichoose/internal/gamesvc/service"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const commandTimeout = 2 * time.Minute

func main() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	cmd := &cobra.Command{
		Use:           "gamectl",
		Short:         "Operator tool for the who-did-i-choose game store.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if v.GetBool("verbose") {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
	}

	fs := cmd.PersistentFlags()
	fs.String("postgres-url", "", "postgres connection string (env: POSTGRES_URL)")
	fs.BoolP("verbose", "v", false, "debug logging")
	bindFlags(v, fs)

	cmd.AddCommand(newMigrateCmd(v), newImportDeckCmd(v), newDecksCmd(v))
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

// bindFlags lets every flag fall back to the environment, e.g.
// --postgres-url to POSTGRES_URL.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")))
	})
}

func connect(v *viper.Viper) (*pgxpool.Pool, error) {
	pool, err := db.Connect(v.GetString("postgres-url"))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			pool, err := connect(v)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info("schema is up to date")
			return nil
		},
	}
}

func newImportDeckCmd(v *viper.Viper) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "import-deck FILE",
		Short: "Create a deck and its cards from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			deck, cards, err := readDeckFile(f, scope)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			pool, err := connect(v)
			if err != nil {
				return err
			}
			defer pool.Close()

			cardService := service.NewCardService(store.NewPgStore(pool), nil)
			if err := cardService.ImportDeck(ctx, deck, cards); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s deck %q (%s) with %d cards\n", deck.Scope, deck.Name, deck.ID, len(cards))
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "override the deck scope in the file (standard|custom)")
	return cmd
}

func newDecksCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "decks",
		Short: "List decks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			pool, err := connect(v)
			if err != nil {
				return err
			}
			defer pool.Close()

			decks, err := service.NewCardService(store.NewPgStore(pool), nil).Decks(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCOPE\tNAME")
			for _, d := range decks {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Scope, d.Name)
			}
			return tw.Flush()
		},
	}
}
