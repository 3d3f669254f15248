package services

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/models"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

func TestMain(m *testing.M) {
	pkgauth.SetBcryptCost(bcrypt.MinCost)
	os.Exit(m.Run())
}

var testEpoch = time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)

const (
	testAccessSecret = "access-secret-for-service-tests-01"
	testAuxSecret    = "aux-secret-for-service-tests-0987"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newJSONLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}

type stackConfig struct {
	guard   LoginGuardConfig
	session SessionConfig
	otp     OTPConfig
	limiter OTPVerifyLimiter
	timing  *auth.TimingDelay
}

// testStack wires every service over one in-memory store and a mock clock
type testStack struct {
	store    *memStore
	clock    *clock.Mock
	notifier *MockNotifier
	access   *auth.Codec
	aux      *auth.Codec
	guard    *LoginGuard
	sessions *SessionService
	otp      *OTPService
	auth     *AuthService
}

func newTestStack(t *testing.T, opts ...func(*stackConfig)) *testStack {
	t.Helper()

	cfg := stackConfig{
		guard:   LoginGuardConfig{MaxFailedAttempts: 5, LockoutPolicy: LockoutPolicyLock},
		session: SessionConfig{AccessTokenTTL: time.Hour, RefreshTokenTTL: 30 * 24 * time.Hour},
		otp:     OTPConfig{TTL: 60 * time.Second, Digits: 6, NotifyTimeout: time.Second},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := newMemStore()
	clk := clock.NewMock(testEpoch)
	logger := discardLogger()
	audit := pkglogger.NewAuditLogger(logger)

	access, err := auth.NewCodec(testAccessSecret, clk)
	require.NoError(t, err)
	aux, err := auth.NewCodec(testAuxSecret, clk)
	require.NoError(t, err)

	notifier := &MockNotifier{}
	guard := NewLoginGuard(store.Accounts(), cfg.guard, clk, cfg.timing, logger, audit)
	sessions := NewSessionService(store.Accounts(), store.Tokens(), store, guard, access, clk, cfg.session, logger, audit)
	otp := NewOTPService(store.OTPs(), store, notifier, cfg.limiter, clk, cfg.otp, logger, audit)
	authService := NewAuthService(store.Accounts(), sessions, otp, aux, clk, logger, audit)

	return &testStack{
		store:    store,
		clock:    clk,
		notifier: notifier,
		access:   access,
		aux:      aux,
		guard:    guard,
		sessions: sessions,
		otp:      otp,
		auth:     authService,
	}
}

// seed stores an active account with the given password and returns it
func (ts *testStack) seed(t *testing.T, username, email, password string) *models.Account {
	t.Helper()
	account := NewTestAccount("", username, email, password)
	account.CreatedAt = ts.clock.Now()
	created, err := ts.store.Accounts().Create(t.Context(), account)
	require.NoError(t, err)
	return created
}
