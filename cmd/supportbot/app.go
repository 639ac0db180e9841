package main

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/render"
	"github.com/zhouzirui/supportbot/internal/service/ai"
	"github.com/zhouzirui/supportbot/internal/service/resolver"
	"github.com/zhouzirui/supportbot/internal/service/widget"
	"github.com/zhouzirui/supportbot/internal/storage"
)

// app holds the collaborators shared by every command.
type app struct {
	options  config.Options
	provider resolver.ResponseProvider
	events   *render.Broadcaster
	registry *widget.Registry
	closer   io.Closer
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	overrides, err := config.LoadOverrides(cfg.WidgetConfigPath)
	if err != nil {
		return nil, err
	}
	options := config.Resolve(overrides)

	backend, closer, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "open transcript storage")
	}
	log.Info().Str("driver", cfg.Storage.Driver).Msg("transcript storage ready")

	// A nil interface, not a typed nil, keeps the resolver on the keyword path.
	var provider resolver.ResponseProvider
	if cfg.AI.Enabled() {
		svc, err := ai.NewService(ctx, cfg.AI, options)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize AI service, continuing with knowledge base replies - 请检查 Ark 模型相关环境变量")
		} else {
			provider = svc
			log.Info().Str("model", cfg.AI.Model).Msg("AI service initialized")
		}
	} else {
		log.Info().Msg("Ark 凭证未配置，使用知识库与远端接口回复")
	}

	events := render.NewBroadcaster()
	registry := widget.NewRegistry(ctx, options, widget.Deps{
		Provider: provider,
		Renderer: events,
		Storage:  backend,
	})

	return &app{
		options:  options,
		provider: provider,
		events:   events,
		registry: registry,
		closer:   closer,
	}, nil
}

// Close stops every widget, then releases storage.
func (a *app) Close() {
	a.registry.Shutdown()
	if err := a.closer.Close(); err != nil {
		log.Warn().Err(err).Msg("closing storage failed")
	}
}
