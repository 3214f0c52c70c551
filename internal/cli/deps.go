package cli

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"quiz-battle-client/internal/config"
	"quiz-battle-client/internal/gateway"
	"quiz-battle-client/internal/infra/memory"
	redisinfra "quiz-battle-client/internal/infra/redis"
	"quiz-battle-client/internal/quizapi"
)

// stateStore matches the store interface every component consumes.
type stateStore interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

type deps struct {
	cfg   config.Config
	store stateStore
	gw    *gateway.Gateway
	api   *quizapi.Client
}

func buildDeps(ctx context.Context, configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var store stateStore = memory.NewStateStore()
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = redisinfra.NewStateStore(client)
	}

	gw := gateway.New(cfg.API.BaseURL, store)
	if err := gw.Restore(ctx); err != nil {
		return nil, err
	}

	return &deps{
		cfg:   cfg,
		store: store,
		gw:    gw,
		api:   quizapi.NewClient(gw),
	}, nil
}

// requireUser fails fast when no credential state was restored.
func (d *deps) requireUser() (string, error) {
	user, ok := d.gw.User()
	if !ok {
		return "", fmt.Errorf("not signed in, run `quizbattle login` first")
	}
	return user.ID, nil
}
