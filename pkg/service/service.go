package service

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/notify"
	"saturn.io/saturn/pkg/service/aaa"
	"saturn.io/saturn/pkg/service/aaa/auth"
	"saturn.io/saturn/pkg/service/models/validate"
	"saturn.io/saturn/pkg/service/options"
	"saturn.io/saturn/pkg/service/routers"
	"saturn.io/saturn/pkg/utils/system"
)

func Run(ctx context.Context, options *options.Options) error {
	ctx = log.NewContext(ctx, log.LogrLogger)
	deps, err := PrepareDependencies(ctx, options)
	if err != nil {
		return fmt.Errorf("failed init dependencies: %v", err)
	}

	if !options.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		log.SetGinDebugPrintRouteFunc(log.GlobalLogger)
	}
	// validator
	validate.InitValidator()

	jwt, err := options.JWT.ToJWT()
	if err != nil {
		return err
	}
	actors := aaa.NewActorInfoHandler()
	authMiddleware := auth.NewAuthMiddleware(jwt, deps.Database.DB(), actors)

	router := routers.NewRouter()
	routers.RegistRouter(router, routers.Services{
		Actors:     actors,
		Migration:  deps.Migration,
		Deployment: deps.Deployment,
	}, authMiddleware.FilterFunc)

	// run
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return system.ListenAndServeContext(ctx, options.System.Listen, options.System.ShutdownTimeout, router)
	})
	eg.Go(func() error {
		logger := log.FromContextOrDiscard(ctx).WithName("notifications")
		return deps.Notifier.Subscribe(ctx, func(n *notify.Notification) {
			logger.Info("notification", "event", n.Event, "resource", n.ResourceUUID, "team", n.TeamID, "to", n.To)
		})
	})
	return eg.Wait()
}
