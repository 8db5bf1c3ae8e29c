package integration

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/rpgmakermvmmo/charserver/api/rest"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/audit"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/cache"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/config"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/inter"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/metrics"
	mw "github.com/kasuganosora/rpgmakermvmmo/charserver/middleware"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/packet"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/reconcile"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/scheduler"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/session"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/storage"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey guards the admin routes of every TestServer.
const AdminKey = "integration-admin-key"

// TestServer runs the inter listener and the admin API on loopback with
// every service wired the way main.go wires them.
type TestServer struct {
	DB        *gorm.DB
	Audit     *audit.Service
	Storage   *storage.Service
	Sessions  *session.Manager
	Events    cache.PubSub
	Registry  *prometheus.Registry
	Inter     *inter.Server
	Admin     *httptest.Server
	InterAddr string
}

// NewTestServer starts a fully wired char server. Everything is torn down
// by t.Cleanup.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t)
	ps := testutil.SetupTestPubSub(t)
	logger := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	auditSvc := audit.New(db, logger)
	st := storage.NewService(db, logger)
	sm := session.NewManager(ps, logger)
	require.NoError(t, sm.Follow(ctx))
	reg := prometheus.NewRegistry()
	m := metrics.NewInterMetrics(reg)
	rc := reconcile.NewService(db, c, auditSvc, reconcile.Options{Atomic: true, LockTTL: 5 * time.Second}, logger)

	router := inter.NewRouter(m, logger)
	inter.NewHandlers(st, rc, sm, m, logger).Register(router, true)

	srv := inter.NewServer(config.InterConfig{ListenAddr: "127.0.0.1:0", SendBuf: 64}, router, m, logger)
	require.NoError(t, srv.Listen())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	sched := scheduler.New(logger)
	sched.AddTicker("link_stats", 20*time.Millisecond, func(context.Context) {
		m.SetLinks(srv.LinkCount())
		m.SetSessions(sm.Count())
	})

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger), mw.RateLimit(ctx, rate.Limit(1000), 2000))
	adminH := apirest.NewAdminHandler(st, sm, srv, sched, logger)
	adminG := r.Group("/api/admin")
	adminG.Use(apirest.AdminAuth(AdminKey, ""))
	adminG.GET("/guild-storage/:guild_id", adminH.GetGuildStorage)
	adminG.GET("/sessions", adminH.ListSessions)
	adminG.GET("/links", adminH.ListLinks)
	adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	admin := httptest.NewServer(r)

	t.Cleanup(func() {
		admin.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		require.NoError(t, srv.Shutdown(shutdownCtx))
		require.True(t, errors.Is(<-served, inter.ErrServerClosed))
		cancel()
		sched.Stop()
		_ = auditSvc.Stop(shutdownCtx)
	})

	return &TestServer{
		DB:        db,
		Audit:     auditSvc,
		Storage:   st,
		Sessions:  sm,
		Events:    ps,
		Registry:  reg,
		Inter:     srv,
		Admin:     admin,
		InterAddr: srv.Addr().String(),
	}
}

// WorldLink is the world-process end of an inter link.
type WorldLink struct {
	t    *testing.T
	conn net.Conn
}

// Dial opens a new world link to ts.
func (ts *TestServer) Dial(t *testing.T) *WorldLink {
	t.Helper()
	conn, err := net.DialTimeout("tcp", ts.InterAddr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &WorldLink{t: t, conn: conn}
}

// Send writes an encoded frame.
func (w *WorldLink) Send(b []byte, err error) {
	w.t.Helper()
	require.NoError(w.t, err)
	require.NoError(w.t, w.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err = w.conn.Write(b)
	require.NoError(w.t, err)
}

// Recv reads the next frame and checks its opcode.
func (w *WorldLink) Recv(want packet.Opcode) packet.Frame {
	w.t.Helper()
	require.NoError(w.t, w.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	f, err := packet.ReadFrame(w.conn)
	require.NoError(w.t, err)
	require.Equal(w.t, want, f.Op, "unexpected opcode %s", f.Op)
	return f
}

// FrontEnd is a character-select front end sharing the session events
// channel with the char server.
type FrontEnd struct {
	t      *testing.T
	ts     *TestServer
	events <-chan *cache.Message
}

// FrontEnd subscribes a front end to the session events of ts.
func (ts *TestServer) FrontEnd(t *testing.T) *FrontEnd {
	t.Helper()
	ch, cancel, err := ts.Events.Subscribe(context.Background(), session.EventsChannel)
	require.NoError(t, err)
	t.Cleanup(cancel)
	return &FrontEnd{t: t, ts: ts, events: ch}
}

// Login announces accountID and waits until the char server lists it.
func (fe *FrontEnd) Login(accountID int32, remote string) {
	fe.t.Helper()
	ev := session.Event{Kind: session.EventLogin, AccountID: accountID, Remote: remote}
	require.NoError(fe.t, fe.ts.Events.Publish(context.Background(), session.EventsChannel, ev.String()))
	require.Eventually(fe.t, func() bool { return fe.ts.Sessions.IsOnline(accountID) },
		2*time.Second, 5*time.Millisecond)
}

// NextKick returns the account of the next kick event, skipping other
// events. It returns 0 when none arrives within wait.
func (fe *FrontEnd) NextKick(wait time.Duration) int32 {
	fe.t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case msg := <-fe.events:
			ev, err := session.ParseEvent(msg.Payload)
			require.NoError(fe.t, err)
			if ev.Kind == session.EventKick {
				return ev.AccountID
			}
		case <-deadline:
			return 0
		}
	}
}
