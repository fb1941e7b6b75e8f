package api

import (
    "context"
    "net/http"
    "os"
    "strings"

    redis "github.com/redis/go-redis/v9"
    "shipflow/internal/assign"
    "shipflow/internal/auth"
    "shipflow/internal/config"
    "shipflow/internal/geo"
    "shipflow/internal/payload"
    "shipflow/internal/pricing"
    "shipflow/internal/quote"
    "shipflow/internal/store"
)

type Server struct {
    Store     store.Store
    Cfg       config.Config
    Orch      *assign.Orchestrator
    Collector *quote.Collector
    Auth      *auth.Verifier
    Broker    EventBroker
}

// NewServer wires the service from the environment. No DATABASE_URL
// means the in-memory store; no REDIS_URL means the in-process broker
// and locker.
func NewServer() (*Server, error) {
    cfg := config.FromEnv()

    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        // Run migrations (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            if err := sp.MigrateDir("db/migrations"); err != nil {
                return nil, err
            }
        }
        s = sp
    }

    var rdb *redis.Client
    if url := os.Getenv("REDIS_URL"); url != "" {
        if opt, err := redis.ParseURL(url); err == nil {
            rdb = redis.NewClient(opt)
        }
    }
    var broker EventBroker
    var locker quote.Locker
    if rdb != nil {
        broker = NewRedisBroker(rdb)
        locker = quote.NewRedisLocker(rdb)
    } else {
        broker = NewBroker()
        locker = quote.NewMemoryLocker()
    }

    var provider geo.Provider
    if p := geo.NewOSRMProviderFromEnv(); p != nil {
        provider = p
    }
    engine := pricing.NewEngine(cfg)
    builder := payload.NewBuilder(engine, provider, cfg.Assignment.PendingExpiry)
    orch := assign.NewOrchestrator(s, builder, cfg)
    collector := quote.NewCollector(s, builder, quote.NewHTTPCarrierAPI(), locker, cfg)

    return &Server{
        Store:     s,
        Cfg:       cfg,
        Orch:      orch,
        Collector: collector,
        Auth:      auth.NewVerifierFromEnv(),
        Broker:    broker,
    }, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
    tenant := s.getPrincipal(r).Tenant
    ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
    return ctx, tenant
}

type ctxKeyTenant struct{}

// NewNotifier creates the background carrier notification worker.
func (s *Server) NewNotifier() *assign.Notifier {
    return assign.NewNotifier(s.Store, s.Cfg)
}

// NewScheduler creates the background retry sweep, wired to the event
// broker so expiry shows up on the order stream.
func (s *Server) NewScheduler() *assign.Scheduler {
    sched := assign.NewScheduler(s.Store, s.Orch, s.Cfg)
    sched.Publish = func(orderID, eventType string, data map[string]any) {
        s.Broker.Publish(orderID, Event{Type: eventType, Data: data})
    }
    return sched
}
