//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/sandeepkv93/credential-manager-go/internal/app"
	"github.com/sandeepkv93/credential-manager-go/internal/repository"
)

func InitializeApp() (*app.App, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		RuntimeInfraSet,
		RepositorySet,
		SecuritySet,
		OutboxSet,
		ServiceSet,
		HTTPSet,
		AppSet,
	))
}

func InitializeMigrationRunner() (*MigrationRunner, error) {
	panic(wire.Build(
		ConfigSet,
		provideOpenDB,
		NewMigrationRunner,
	))
}

func InitializeOutboxRunner() (*OutboxRunner, error) {
	panic(wire.Build(
		ConfigSet,
		provideToolLogger,
		provideOpenDB,
		provideRedisClient,
		repository.NewOutboxRepository,
		OutboxSet,
		NewOutboxRunner,
	))
}
