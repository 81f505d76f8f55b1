package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"promptsmith/advisor"
	"promptsmith/architect"
	"promptsmith/handlers"
	"promptsmith/refiner"
	"promptsmith/shared"
	"promptsmith/temporal"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			deps := handlers.Deps{
				Runner:     a.runner,
				Settings:   a.settings,
				Models:     a.llm,
				Refiner:    refiner.New(a.runner, a.metrics, logger),
				Library:    a.library,
				Runs:       a.runs,
				Metrics:    a.metrics,
				Logger:     logger,
				SessionTTL: cfg.Sessions.TTL,
				Language:   cfg.Generation.OutputLanguage,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Temporal.Enabled {
				c, err := a.connectTemporal(cfg.Temporal, logger)
				if err != nil {
					return err
				}
				deps.Starter = &temporal.Starter{Client: c, TaskQueue: cfg.Temporal.TaskQueue}
				if withWorker, _ := cmd.Flags().GetBool("with-worker"); withWorker {
					w := a.newWorker(c, cfg.Temporal.TaskQueue)
					if err := w.Start(); err != nil {
						return fmt.Errorf("unable to start Temporal worker: %w", err)
					}
					defer w.Stop()
				}
			}

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           handlers.NewHandler(deps).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("HTTP server failed: %w", err)
			case <-ctx.Done():
			}
			logger.Info("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("addr", ":3000", "listen address")
	cmd.Flags().Bool("with-worker", true, "run a Temporal worker in-process when temporal is enabled")
	_ = v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker for durable architect runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.connectTemporal(cfg.Temporal, logger)
			if err != nil {
				return err
			}
			return temporal.RunWorker(a.newWorker(c, cfg.Temporal.TaskQueue), cfg.Temporal.TaskQueue, logger)
		},
	}
}

type requestFlags struct {
	model     string
	language  string
	variables []string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "request-model", "", "model for this request")
	cmd.Flags().StringVar(&f.language, "request-language", "", "output language for this request")
	cmd.Flags().StringSliceVar(&f.variables, "var", nil, "placeholder variable the prompt must contain (repeatable)")
}

func newAutomateCmd() *cobra.Command {
	var (
		rf      requestFlags
		durable bool
		publish bool
		name    string
	)
	cmd := &cobra.Command{
		Use:   "automate <description>",
		Short: "Run all four steps and print the final system prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			req := a.request(strings.Join(args, " "), rf.model, rf.language, rf.variables)
			out := cmd.OutOrStdout()

			if durable {
				c, err := a.connectTemporal(cfg.Temporal, logger)
				if err != nil {
					return err
				}
				starter := &temporal.Starter{Client: c, TaskQueue: cfg.Temporal.TaskQueue}
				id, err := starter.StartArchitect(cmd.Context(), shared.ArchitectInput{Request: req, Publish: publish, Name: name})
				if err != nil {
					return err
				}
				logger.Info("Started workflow", zap.String("workflowID", id))
				res, err := starter.WaitArchitect(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, res.FinalPrompt)
				if res.CommitHash != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), "published:", res.CommitHash)
				}
				return nil
			}

			arch := architect.New(a.runner, req,
				architect.WithMetrics(a.metrics),
				architect.WithLogger(logger),
				architect.WithObserver(func(s architect.Snapshot) {
					if s.Progress != "" {
						fmt.Fprintln(cmd.ErrOrStderr(), s.Progress)
					}
				}),
			)
			snap, err := arch.Automate(cmd.Context())
			if err != nil {
				return err
			}
			if snap.Error != "" {
				return errors.New(snap.Error)
			}
			fmt.Fprintln(out, snap.Artifacts.FinalPrompt)
			if publish {
				if name == "" {
					name = req.Description
				}
				hash, err := a.library.Publish(name, snap.Artifacts.FinalPrompt, "Add system prompt: "+name)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "published:", hash)
			}
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().BoolVar(&durable, "durable", false, "run as a Temporal workflow")
	cmd.Flags().BoolVar(&publish, "publish", false, "commit the final prompt to the prompt library")
	cmd.Flags().StringVar(&name, "name", "", "prompt library entry name")
	return cmd
}

// readPrompt reads the prompt text from file, or stdin when file is "-" or empty.
func readPrompt(cmd *cobra.Command, file string) (string, error) {
	var (
		b   []byte
		err error
	)
	if file == "" || file == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("reading prompt: %w", err)
	}
	return string(b), nil
}

func newAdviseCmd() *cobra.Command {
	var (
		rf         requestFlags
		file       string
		promptType string
		apply      bool
	)
	cmd := &cobra.Command{
		Use:   "advise <description>",
		Short: "Suggest improvements for an existing system or user prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := shared.ParsePromptType(promptType)
			if err != nil {
				return err
			}
			text, err := readPrompt(cmd, file)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			adv := advisor.New(a.runner, a.request(strings.Join(args, " "), rf.model, rf.language, rf.variables),
				advisor.WithMetrics(a.metrics), advisor.WithLogger(logger))
			snap, err := adv.Analyze(cmd.Context(), pt, text)
			if err != nil {
				return err
			}
			if snap.Error != "" {
				return errors.New(snap.Error)
			}
			out := cmd.OutOrStdout()
			for _, s := range snap.Advice {
				fmt.Fprintln(out, "- "+s)
			}
			if !apply {
				return nil
			}
			snap, err = adv.Apply(cmd.Context(), pt)
			if err != nil {
				return err
			}
			if snap.Error != "" {
				return errors.New(snap.Error)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, snap.Refined)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "prompt file (default stdin)")
	cmd.Flags().StringVarP(&promptType, "type", "t", string(shared.PromptTypeSystem), "prompt type: system or user")
	cmd.Flags().BoolVar(&apply, "apply", false, "apply the suggestions and print the refined prompt")
	return cmd
}

func newRefineCmd() *cobra.Command {
	var (
		rf         requestFlags
		file       string
		promptType string
	)
	cmd := &cobra.Command{
		Use:   "refine <description>",
		Short: "Rewrite a prompt against the rules in one call",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := shared.ParsePromptType(promptType)
			if err != nil {
				return err
			}
			text, err := readPrompt(cmd, file)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			r := refiner.New(a.runner, a.metrics, logger)
			out, err := r.Refine(cmd.Context(), a.request(strings.Join(args, " "), rf.model, rf.language, rf.variables), text, pt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "prompt file (default stdin)")
	cmd.Flags().StringVarP(&promptType, "type", "t", string(shared.PromptTypeSystem), "prompt type: system or user")
	return cmd
}
