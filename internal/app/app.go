package app

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shandysiswandi/yieldcycle/internal/pkg/clock"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/config"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/goroutine"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/hash"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/idempotency"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/instrument"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/jwt"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/mail"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/messaging"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/router"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/storage"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/uid"
	"github.com/shandysiswandi/yieldcycle/internal/pkg/validator"
)

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	uid       uid.NumberID
	uuid      uid.StringID
	jwt       jwt.JWT
	hmac      hash.Hash

	// resources
	dbConn    *pgxpool.Pool
	cacheConn *redis.Client
	idemp     idempotency.Idempotency
	mail      mail.Mail
	messaging messaging.Messaging
	// storage is nil unless storage.driver is set.
	storage storage.Storage

	// server
	router     *router.Router
	httpServer *http.Server

	//
	closers []struct {
		name string
		fn   func(context.Context) error
	}
}

// New initializes the application with default wiring and returns an App instance.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initJWT()
	app.initHash()
	app.initDatabase()
	app.initCache()
	app.initMail()
	app.initStorage()
	app.initMessaging()
	app.initHTTPServer()
	app.initModules()
	app.initClosers()

	return app
}
