// сервер блога: посты, комментарии и лайки через REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rtemka/blog/domain"
	"github.com/rtemka/blog/pkg/api"
	"github.com/rtemka/blog/pkg/config"
	"github.com/rtemka/blog/pkg/memdb"
	"github.com/rtemka/blog/pkg/moderation"
	"github.com/rtemka/blog/pkg/postgres"
	"github.com/rtemka/blog/pkg/session"
	"github.com/rtemka/blog/pkg/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	zl := zapLogger(os.Stdout)
	defer func() {
		_ = zl.Sync()
	}()

	db, err := connectDB(cfg.DB, zl)
	if err != nil {
		return err
	}
	defer db.Close()

	// создание контекста для регулирования
	// закрытие всех подсистем
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := prepareDB(ctx, db, cfg.SeedFile, zl); err != nil {
		return err
	}

	sm, err := session.New(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return err
	}
	sm.Secure = cfg.Production()

	var wg sync.WaitGroup
	wg.Add(1)

	servers := []*http.Server{
		startRestServer(cfg, db, sm, zl, &wg),
	}

	// логика закрытия сервера
	cancelation(cancel, zl, servers)

	wg.Wait()

	return nil
}

// cancellation отслеживает сигналы прерывания и,
// если они получены, "мягко" отменяет контекст приложения и
// гасит серверы.
func cancelation(cancel context.CancelFunc, logger *zap.Logger, servers []*http.Server) {
	// ловим сигналов прерывания, типа CTRL-C
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-stop // получили сигнал
		sl := logger.Sugar()
		sl.Warnf("got signal %q", sig)

		ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()

		// закрываем серверы
		for i := range servers {
			if err := servers[i].Shutdown(ctx); err != nil {
				sl.Info(err)
			}
		}

		cancel() // закрываем контекст приложения
	}()
}

var ErrRetryExceeded = errors.New("connect DB: number of retries exceeded")

// storage - хранилище, которое умеет создавать схему и исполнять sql-файлы.
type storage interface {
	domain.Repository
	Migrate(ctx context.Context) error
	RunFile(path string) error
}

// connectDB выбирает хранилище по DB_URL:
// postgres:// - PostgreSQL, mem:// - память, остальное - SQLite.
func connectDB(cfg config.DBConfig, logger *zap.Logger) (domain.Repository, error) {
	if strings.HasPrefix(cfg.URL, "mem://") {
		logger.Warn("using in-memory storage, data will be lost on exit")
		return memdb.New(), nil
	}

	var lastErr error
	for i := 0; i < cfg.ConnectRetries; i++ {
		db, err := open(cfg)
		if err != nil {
			lastErr = err
			logger.Warn("connect DB", zap.Int("attempt", i+1), zap.Error(err))
			time.Sleep(cfg.ConnectInterval)
			continue
		}
		return db, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrRetryExceeded, lastErr)
}

func open(cfg config.DBConfig) (storage, error) {
	if strings.HasPrefix(cfg.URL, "postgres://") || strings.HasPrefix(cfg.URL, "postgresql://") {
		db, err := postgres.New(context.Background(), cfg.URL, int32(cfg.MaxConns), cfg.MaxConnIdleTime)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, err
		}
		return db, nil
	}

	db, err := sqlite.New(cfg.URL)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	db.DB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	db.DB.SetMaxOpenConns(cfg.MaxConns)
	db.DB.SetMaxIdleConns(cfg.MaxConns)
	return db, nil
}

// prepareDB создает схему и загружает начальные данные.
// Хранилище в памяти заполняется демонстрационными данными.
func prepareDB(ctx context.Context, db domain.Repository, seedFile string, logger *zap.Logger) error {
	st, ok := db.(storage)
	if !ok {
		return seedDemo(ctx, db)
	}

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if seedFile == "" {
		return nil
	}
	if err := st.RunFile(seedFile); err != nil {
		return fmt.Errorf("seed %s: %w", seedFile, err)
	}
	logger.Info("seed file applied", zap.String("file", seedFile))
	return nil
}

func seedDemo(ctx context.Context, db domain.Repository) error {
	for _, name := range []string{"Kyle", "Sally"} {
		if err := db.CreateUser(ctx, domain.User{ID: uuid.NewString(), Name: name}); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	for i := 1; i <= 2; i++ {
		p := domain.Post{
			ID:        uuid.NewString(),
			Title:     fmt.Sprintf("Post %d", i),
			Body:      "Lorem ipsum dolor sit amet, consectetur adipiscing elit.",
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := db.CreatePost(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// startRestServer запускает сервер REST API.
func startRestServer(cfg *config.Config, db domain.Repository, sm *session.Manager, logger *zap.Logger, wg *sync.WaitGroup) *http.Server {
	// REST API
	api := api.New(db, logger, api.Options{
		Sessions:       sm,
		Checker:        moderation.New(cfg.BannedWords...),
		AllowedOrigins: cfg.ClientURL,
		Timeout:        cfg.RequestTimeout,
	})

	// конфигурируем сервер
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api,
		IdleTimeout:       3 * time.Minute,
		ReadHeaderTimeout: time.Minute,
	}

	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error(err.Error())
		}
		logger.Warn("server is shut down")
		wg.Done()
	}()
	logger.Info("REST server started", zap.String("address", srv.Addr), zap.String("env", cfg.Env))
	return srv
}

var encoderCfg = zapcore.EncoderConfig{
	MessageKey: "msg",
	NameKey:    "name",

	LevelKey:    "level",
	EncodeLevel: zapcore.CapitalLevelEncoder,

	CallerKey:    "caller",
	EncodeCaller: zapcore.ShortCallerEncoder,

	TimeKey:    "time",
	EncodeTime: zapcore.RFC3339TimeEncoder,
}

func zapLogger(w io.Writer) *zap.Logger {
	zl := zap.New(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(zapcore.AddSync(w)),
			zapcore.DebugLevel,
		),
		zap.AddCaller(),
	)
	return zl
}
