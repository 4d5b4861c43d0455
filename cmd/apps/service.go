package apps

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"saturn.io/saturn/pkg/authorization"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/service"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/service/options"
	"saturn.io/saturn/pkg/utils/config"
	"saturn.io/saturn/pkg/utils/database"
	"saturn.io/saturn/pkg/version"
)

func NewServiceCmd() *cobra.Command {
	options := options.DefaultOptions()
	cmd := &cobra.Command{
		Use:          "service",
		Short:        "run api service",
		SilenceUsage: true,
		Version:      version.Get().String(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Parse(cmd.Flags()); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return service.Run(ctx, options)
		},
	}
	cmd.AddCommand(
		newGenServiceCfgCmd(),
		newServiceMigrateCmd(),
	)
	options.RegistFlags("", cmd.Flags())
	return cmd
}

func newGenServiceCfgCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gencfg",
		Short: "generate config template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.GenerateConfig(cmd.OutOrStdout(), options.DefaultOptions())
		},
	}
}

func newServiceMigrateCmd() *cobra.Command {
	options := options.DefaultOptions()
	initData := false
	wait := false
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "create tables, seed rbac policies and optionally the root team (use service config)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Parse(cmd.Flags()); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = log.NewContext(ctx, log.LogrLogger)

			if wait {
				if err := models.WaitDatabaseServer(ctx, options.Database); err != nil {
					return err
				}
			}
			if err := models.MigrateDatabaseAndInitData(ctx, options.Database, initData); err != nil {
				return err
			}
			db, err := database.NewDatabase(options.Database)
			if err != nil {
				return err
			}
			_, err = authorization.NewCasbinPermissionChecker(ctx, db.DB())
			return err
		},
	}
	options.RegistFlags("", cmd.Flags())
	cmd.Flags().BoolVar(&initData, "initdata", initData, "create the root team and its owner")
	cmd.Flags().BoolVar(&wait, "wait", wait, "wait for the database server to be ready")
	return cmd
}
