package routes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/congo-pay/authgraph/internal/auth"
	"github.com/congo-pay/authgraph/internal/authz"
	"github.com/congo-pay/authgraph/internal/config"
	"github.com/congo-pay/authgraph/internal/graph"
	"github.com/congo-pay/authgraph/internal/identity"
	"github.com/congo-pay/authgraph/internal/mfa"
	"github.com/congo-pay/authgraph/internal/middleware"
	"github.com/congo-pay/authgraph/internal/password"
)

const indexTimeout = 10 * time.Second

// Deps aggregates shared dependencies required to wire routes. Only the
// client matching Cfg.StoreDriver needs to be set.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Mongo  *mongo.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	repo, err := newRepository(d)
	if err != nil {
		return err
	}

	tokens, err := auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.TokenTTL)
	if err != nil {
		return err
	}
	mfaManager := mfa.NewManager(repo, d.Cfg.MFAIssuer, d.Logger)
	users := identity.NewService(repo, password.NewHasher(d.Cfg.BcryptCost), mfaManager, identity.Policy{
		MaxAttempts:     d.Cfg.MaxLoginAttempts,
		LockoutDuration: d.Cfg.LockoutDuration,
		RequireMFA:      d.Cfg.RequireMFA,
	}, d.Logger)

	schema, err := graph.NewSchema(graph.NewResolver(users, mfaManager, tokens, d.Logger))
	if err != nil {
		return fmt.Errorf("build graphql schema: %w", err)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text console line: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.AccessLog(d.Logger))
	app.Use(middleware.Identity(tokens, users, d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterGraphQLRoutes(app, graph.NewHandler(schema, authz.NewGate(nil), d.Logger))

	return nil
}

func newRepository(d Deps) (identity.Repository, error) {
	switch d.Cfg.StoreDriver {
	case config.DriverPostgres:
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when STORE_DRIVER=%s", d.Cfg.StoreDriver)
		}
		return identity.NewPostgresRepository(d.DB), nil
	case config.DriverRedis:
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when STORE_DRIVER=%s", d.Cfg.StoreDriver)
		}
		return identity.NewRedisRepository(d.Cache), nil
	case config.DriverMongo:
		if d.Mongo == nil {
			return nil, fmt.Errorf("mongo is required when STORE_DRIVER=%s", d.Cfg.StoreDriver)
		}
		repo := identity.NewMongoRepository(d.Mongo.Database(d.Cfg.MongoDatabase))
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverMemory, "":
		return identity.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", d.Cfg.StoreDriver)
	}
}
