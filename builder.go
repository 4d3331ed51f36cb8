package sessionkit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/halcyonlabs/sessionkit/biometric"
	"github.com/halcyonlabs/sessionkit/recovery"
	"github.com/halcyonlabs/sessionkit/securestore"
)

// Builder defines a public type used by sessionkit APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	keystore   securestore.Keystore
	sqlitePath string

	provider     IdentityProvider
	sensor       biometric.Sensor
	device       DeviceInfo
	prefs        recovery.PreferenceStore
	auditSink    AuditSink
	logger       zerolog.Logger
	loggerSet    bool
	connectivity func(ctx context.Context) bool
	resetSync    func(ctx context.Context) error

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithKeystore injects an explicit keystore backend, overriding the Redis
// and SQLite options.
//
// WithKeystore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithKeystore(ks securestore.Keystore) *Builder {
	b.keystore = ks
	return b
}

// WithSQLitePath describes the withsqlitepath operation and its observable behavior.
//
// WithSQLitePath does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSQLitePath(path string) *Builder {
	b.sqlitePath = path
	return b
}

// WithIdentityProvider describes the withidentityprovider operation and its observable behavior.
//
// WithIdentityProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithPresenceSensor describes the withpresencesensor operation and its observable behavior.
//
// WithPresenceSensor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPresenceSensor(s biometric.Sensor) *Builder {
	b.sensor = s
	return b
}

// WithDeviceInfo describes the withdeviceinfo operation and its observable behavior.
//
// WithDeviceInfo does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithDeviceInfo(info DeviceInfo) *Builder {
	b.device = info
	return b
}

// WithPreferenceStore describes the withpreferencestore operation and its observable behavior.
//
// WithPreferenceStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPreferenceStore(p recovery.PreferenceStore) *Builder {
	b.prefs = p
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = l
	b.loggerSet = true
	return b
}

// WithConnectivityCheck injects the reachability probe the recovery
// orchestrator consults before retrying network failures.
//
// WithConnectivityCheck does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConnectivityCheck(fn func(ctx context.Context) bool) *Builder {
	b.connectivity = fn
	return b
}

// WithSyncReset injects the hook the recovery orchestrator invokes to
// reinitialize caller-owned sync state after a conflict.
//
// WithSyncReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSyncReset(fn func(ctx context.Context) error) *Builder {
	b.resetSync = fn
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.device.DeviceID == "" {
		return nil, errors.New("device info with a DeviceID required")
	}

	// -------- KEYSTORE BACKEND --------
	var sqliteKS *securestore.SQLiteKeystore
	backend := b.keystore
	if backend == nil && b.redis != nil {
		backend = securestore.NewRedisKeystore(b.redis, cfg.Keystore.RedisPrefix)
	}
	if backend == nil && b.sqlitePath != "" {
		ks, err := securestore.NewSQLiteKeystore(b.sqlitePath)
		if err != nil {
			return nil, err
		}
		sqliteKS = ks
		backend = ks
	}
	if backend == nil {
		return nil, errors.New("keystore backend required (redis client, sqlite path, or explicit keystore)")
	}

	logger := b.logger
	if !b.loggerSet {
		logger = zerolog.Nop()
	}

	// -------- PRESENCE GATE --------
	gate := biometric.NewGate(b.sensor)

	// -------- SECURE STORE --------
	store := securestore.New(securestore.Config{
		DeviceID:     b.device.DeviceID,
		MaxValueSize: cfg.Keystore.MaxValueSize,
	}, backend, gate, gate)

	engine := &Engine{
		config:   cfg,
		store:    store,
		gate:     gate,
		provider: b.provider,
		device:   b.device,
		log:      logger,
		sqlite:   sqliteKS,
		now:      time.Now,
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- RECOVERY ORCHESTRATOR --------
	engine.recovery = recovery.NewOrchestrator(recovery.Hooks{
		ProbeStore:   func(ctx context.Context) error { return backend.Ping(ctx) },
		ReinitStore:  func(ctx context.Context) error { return store.Initialize(ctx) },
		Connectivity: b.connectivity,
		ClearTokens:  func(ctx context.Context) error { return engine.ClearSession(ctx) },
		PurgeCache:   func(ctx context.Context) error { return store.Clear(ctx, cacheService) },
		ResetSync:    b.resetSync,
	}, b.prefs, recovery.Options{
		MaxAttempts: cfg.Recovery.MaxAttempts,
		BaseDelay:   cfg.Recovery.BaseDelay,
		Logger:      logger,
	})

	b.built = true

	return engine, nil
}
