package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/internal/observability"
	"github.com/pitabwire/govconsole/internal/terminal"
	"github.com/pitabwire/govconsole/model"
)

// TerminalOptions identifies the operator of a local session.
type TerminalOptions struct {
	Subject string
	Tenant  string
	Name    string
	Roles   []string
	LogFile string
}

// NewTerminalCommand creates the terminal command.
func NewTerminalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TerminalOptions{}

	cmd := &cobra.Command{
		Use:   "terminal",
		Short: "Open the admin dashboard in the terminal",
		Long: `Open the admin dashboard in the terminal as the given operator.

Capabilities are resolved from the configured policy exactly as for
interactions delivered over HTTP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminal(cmd.Context(), rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "operator subject id (required)")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant (guild) id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "operator display name")
	cmd.Flags().StringSliceVar(&opts.Roles, "role", nil, "operator role; repeatable")
	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "write logs to this file instead of discarding them")

	return cmd
}

func (o *TerminalOptions) requestContext() (*model.RequestContext, error) {
	rctx := &model.RequestContext{
		SubjectID:   o.Subject,
		TenantID:    o.Tenant,
		DisplayName: o.Name,
		Roles:       o.Roles,
	}
	if err := rctx.Validate(); err != nil {
		return nil, errors.New("--subject is required")
	}
	return rctx, nil
}

func runTerminal(ctx context.Context, rootOpts *RootOptions, opts *TerminalOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rctx, err := opts.requestContext()
	if err != nil {
		return err
	}
	cfg, err := rootOpts.load()
	if err != nil {
		return err
	}

	// The program owns stdout.
	logger := zap.NewNop()
	if opts.LogFile != "" {
		cfg.Observability.LogFile = opts.LogFile
		if logger, err = observability.NewLogger(cfg.Observability); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		defer logger.Sync()
	}

	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	caps, err := a.resolver.Resolve(rctx)
	if err != nil {
		return fmt.Errorf("resolve capabilities: %w", err)
	}
	logger.Info("terminal session started",
		zap.String("subject_id", rctx.SubjectID),
		zap.Strings("capabilities", caps.Sorted()),
	)

	return terminal.Run(ctx, a.dashboard, rctx, caps, a.dashboard.ID())
}
