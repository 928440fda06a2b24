package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kbchat/internal/assembler"
	"kbchat/internal/config"
	"kbchat/internal/dialog"
	"kbchat/internal/domain"
	"kbchat/internal/embedding"
	"kbchat/internal/generator"
	"kbchat/internal/ingest"
	"kbchat/internal/logging"
	"kbchat/internal/ranker"
	"kbchat/internal/segmenter"
	"kbchat/internal/store"
	"kbchat/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired components shared by all subcommands.
type app struct {
	cfg   *config.AppConfig
	log   *zap.Logger
	store *store.Store
}

func newApp(cfgPath string) (*app, error) {
	_ = godotenv.Load()

	var cfg *config.AppConfig
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Logging.JSON, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	st, err := store.Open(cfg.Storage.Path, log)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, store: st}, nil
}

func (a *app) close() {
	_ = a.store.Close()
	_ = a.log.Sync()
}

func (a *app) embedder() (domain.Embedder, error) {
	switch a.cfg.Embedder.Type {
	case "hash", "":
		return embedding.NewHashEmbedder(a.cfg.Embedder.Dimension), nil
	case "openai":
		ocfg := embedding.OpenAIConfig{Dimension: a.cfg.Embedder.Dimension}
		if c := a.cfg.Embedder.OpenAI; c != nil {
			ocfg.BaseURL = c.BaseURL
			ocfg.APIKeyEnv = c.APIKeyEnv
			ocfg.Model = c.Model
		}
		return embedding.NewOpenAIEmbedder(ocfg)
	default:
		return nil, fmt.Errorf("unknown embedder: %s", a.cfg.Embedder.Type)
	}
}

func (a *app) generator() (domain.Generator, error) {
	switch a.cfg.Generator.Type {
	case "mock", "":
		return generator.Mock{}, nil
	case "openai":
		ocfg := generator.OpenAIConfig{}
		if c := a.cfg.Generator.OpenAI; c != nil {
			ocfg.BaseURL = c.BaseURL
			ocfg.APIKeyEnv = c.APIKeyEnv
			ocfg.Model = c.Model
		}
		return generator.NewOpenAI(ocfg)
	default:
		return nil, fmt.Errorf("unknown generator: %s", a.cfg.Generator.Type)
	}
}

func (a *app) ranker() (*ranker.Ranker, error) {
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	return ranker.New(a.store, emb, a.cfg.Ranker.VectorWeight, a.cfg.Ranker.LexicalWeight, a.log), nil
}

func (a *app) dialogService() (*dialog.Service, error) {
	rnk, err := a.ranker()
	if err != nil {
		return nil, err
	}
	gen, err := a.generator()
	if err != nil {
		return nil, err
	}
	asm := assembler.New(a.cfg.Context.MaxChunks, a.cfg.Context.MaxChars, a.cfg.Context.SectionMaxChars)
	dcfg := dialog.Config{
		TopK:               a.cfg.Ranker.TopK,
		MinScore:           a.cfg.Ranker.MinScore,
		MinConfidence:      a.cfg.Dialog.MinConfidence,
		MaxQuestions:       a.cfg.Dialog.MaxQuestions,
		MaxHistoryMessages: a.cfg.Dialog.MaxHistoryMessages,
		GenerateTimeout:    time.Duration(a.cfg.Dialog.GenerateTimeout) * time.Second,
		MaxAnswerTokens:    a.cfg.Dialog.MaxAnswerTokens,
	}
	return dialog.New(rnk, asm, gen, a.store, a.store, a.cfg.Versions, dcfg, a.log), nil
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "kbchat",
		Short:         "Versioned knowledge-base support bot for Termidesk VDI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config YAML")

	root.AddCommand(
		newIngestCmd(&cfgPath),
		newAskCmd(&cfgPath),
		newChatCmd(&cfgPath),
		newSearchCmd(&cfgPath),
		newVersionCmd(&cfgPath),
	)
	return root
}

func newIngestCmd(cfgPath *string) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "ingest <path|glob>...",
		Short: "Segment, embed and store knowledge-base documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			emb, err := a.embedder()
			if err != nil {
				return err
			}
			seg := segmenter.New(
				a.cfg.Segmenter.MaxChunkChars,
				a.cfg.Segmenter.OverlapChars,
				a.cfg.Segmenter.MinChunkChars,
			)
			p := ingest.New(seg, emb, a.store, a.log)
			res, err := p.IngestPaths(cmd.Context(), args, version)
			if err != nil {
				return err
			}
			fmt.Printf("ingested %d documents, %d chunks (version %s)\n",
				res.Documents, res.Chunks, version)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "knowledge-base version tag")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func newAskCmd(cfgPath *string) *cobra.Command {
	var userID, chatID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			svc, err := a.dialogService()
			if err != nil {
				return err
			}
			question := joinArgs(args)
			out, err := svc.Reply(cmd.Context(), userID, chatID, question)
			if err != nil {
				return err
			}
			fmt.Println(out.Reply)
			for _, c := range out.Citations {
				fmt.Printf("  [%s]\n", c.Source)
			}
			fmt.Printf("(режим=%s найдено=%d top=%.2f порог=%.2f)\n",
				out.Mode, out.Retrieval.RetrievedCount, out.Retrieval.TopScore, out.Retrieval.Threshold)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "user identifier")
	cmd.Flags().StringVar(&chatID, "chat", "local", "chat identifier")
	return cmd
}

func newChatCmd(cfgPath *string) *cobra.Command {
	var userID, chatID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			svc, err := a.dialogService()
			if err != nil {
				return err
			}
			m := tui.New(svc, a.store, userID, chatID)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local", "user identifier")
	cmd.Flags().StringVar(&chatID, "chat", "local", "chat identifier")
	return cmd
}

func newSearchCmd(cfgPath *string) *cobra.Command {
	var topK int
	var version string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run retrieval only and print scored chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			rnk, err := a.ranker()
			if err != nil {
				return err
			}
			results, err := rnk.Rank(cmd.Context(), joinArgs(args), topK, version, a.cfg.Ranker.MinScore)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. [%s #%d] score=%.3f conf=%.3f lex=%.2f\n",
					i+1, r.Chunk.DocumentTitle, r.Chunk.Position, r.Score, r.Confidence, r.Lexical)
				fmt.Println(indent(snippetLine(r.Chunk.Text)))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "max results (0 = config default)")
	cmd.Flags().StringVar(&version, "version", "", "restrict to a knowledge-base version")
	return cmd
}

func newVersionCmd(cfgPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Manage the per-user knowledge-base version",
	}
	cmd.PersistentFlags().StringVar(&userID, "user", "local", "user identifier")

	set := &cobra.Command{
		Use:   "set <tag>",
		Short: "Set the user's knowledge-base version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.store.SetUserVersion(cmd.Context(), userID, args[0]); err != nil {
				return err
			}
			fmt.Printf("version for %s set to %s\n", userID, args[0])
			return nil
		},
	}
	get := &cobra.Command{
		Use:   "get",
		Short: "Show the user's knowledge-base version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			v, err := a.store.UserVersion(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if v == "" {
				fmt.Println("no version set")
				return nil
			}
			fmt.Println(v)
			return nil
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the configured knowledge-base versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			for _, v := range a.cfg.Versions {
				fmt.Println(v)
			}
			return nil
		},
	}
	cmd.AddCommand(set, get, list)
	return cmd
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func snippetLine(text string) string {
	r := []rune(text)
	if len(r) > 160 {
		return string(r[:160]) + "…"
	}
	return text
}

func indent(s string) string {
	return "   " + s
}
