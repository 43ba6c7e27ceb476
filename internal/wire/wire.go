//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"github.com/rjtruitt/CodeReviewBot/internal/app"
)

// InitializeApp builds the fully wired daemon application from a config path.
func InitializeApp(ctx context.Context, configPath string) (*app.App, func(), error) {
	wire.Build(AppSet)
	return &app.App{}, nil, nil
}
