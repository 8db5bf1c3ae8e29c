package rest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/api/rest"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/cache"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/inter"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/item"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/model"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/scheduler"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/session"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/storage"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

type fakeLinks []inter.LinkInfo

func (f fakeLinks) Links() []inter.LinkInfo { return f }

type adminEnv struct {
	r       *gin.Engine
	db      *gorm.DB
	storage *storage.Service
	sm      *session.Manager
	events  cache.PubSub
}

func newAdminRouter(t *testing.T, adminKey, adminKeyHash string) *adminEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	st := storage.NewService(db, nopLogger())
	ps := testutil.SetupTestPubSub(t)
	sm := session.NewManager(ps, nopLogger())
	sched := scheduler.New(nopLogger())
	t.Cleanup(sched.Stop)
	sched.AddTicker("stats", time.Hour, func(context.Context) {})
	links := fakeLinks{{ID: "link-1", Remote: "10.0.0.2:40000", ConnectedAt: time.Now()}}
	h := rest.NewAdminHandler(st, sm, links, sched, nopLogger())

	r := gin.New()
	g := r.Group("/api/admin")
	g.Use(rest.AdminAuth(adminKey, adminKeyHash))
	g.GET("/storage/:account_id", h.GetStorage)
	g.PUT("/storage/:account_id", h.PutStorage)
	g.DELETE("/storage/:account_id", h.DeleteStorage)
	g.GET("/guild-storage/:guild_id", h.GetGuildStorage)
	g.DELETE("/guild-storage/:guild_id", h.DeleteGuildStorage)
	g.GET("/sessions", h.ListSessions)
	g.POST("/kick/:account_id", h.KickSession)
	g.GET("/links", h.ListLinks)
	g.GET("/scheduler", h.ListSchedulerTasks)
	return &adminEnv{r: r, db: db, storage: st, sm: sm, events: ps}
}

func (e *adminEnv) do(method, path, key string) *httptest.ResponseRecorder {
	return e.doJSON(method, path, key, "")
}

func (e *adminEnv) doJSON(method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(rest.AdminKeyHeader, key)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// ---- AdminAuth ----

func TestAdminAuth_NoKey_Disabled(t *testing.T) {
	e := newAdminRouter(t, "", "")
	w := e.do(http.MethodGet, "/api/admin/sessions", "anything")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminAuth_WrongKey(t *testing.T) {
	e := newAdminRouter(t, "secret", "")
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/admin/sessions", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/admin/sessions", "").Code)
}

func TestAdminAuth_CorrectKey(t *testing.T) {
	e := newAdminRouter(t, "secret", "")
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/admin/sessions", "secret").Code)
}

func TestAdminAuth_BcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	// The hash wins over the plain key.
	e := newAdminRouter(t, "plain", string(hash))

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/admin/sessions", "hashed-secret").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/admin/sessions", "plain").Code)
}

// ---- Storage ----

func TestGetStorage(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	require.Zero(t, e.storage.SaveStorage(context.Background(), 2000001, &storage.Storage{
		Items: []item.Item{{NameID: 607, Amount: 3}, {NameID: 501, Amount: 10, Refine: 2}},
	}))

	w := e.do(http.MethodGet, "/api/admin/storage/2000001", "k")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(2), resp["count"])
	items := resp["items"].([]interface{})
	first := items[0].(map[string]interface{})
	assert.Equal(t, float64(501), first["nameid"])
	assert.Equal(t, float64(2), first["refine"])
	assert.NotZero(t, first["id"])
}

func TestGetStorage_InvalidID(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/admin/storage/abc", "k").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/admin/storage/-4", "k").Code)
}

func TestPutStorage_ReplacesItems(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	require.Zero(t, e.storage.SaveStorage(context.Background(), 7, &storage.Storage{
		Items: []item.Item{{NameID: 501, Amount: 10}, {NameID: 909, Amount: 1}},
	}))

	w := e.doJSON(http.MethodPut, "/api/admin/storage/7", "k",
		`{"items":[{"nameid":501,"amount":4},{"nameid":1201,"amount":1,"refine":5,"card0":4001}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode(t, w)["count"])

	s, err := e.storage.LoadStorage(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, s.Items, 2)
	assert.Equal(t, int32(501), s.Items[0].NameID)
	assert.Equal(t, int16(4), s.Items[0].Amount)
	assert.Equal(t, int32(1201), s.Items[1].NameID)
	assert.Equal(t, uint8(5), s.Items[1].Refine)
	assert.Equal(t, int16(4001), s.Items[1].Cards[0])
}

func TestPutStorage_BadRequest(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	assert.Equal(t, http.StatusBadRequest, e.doJSON(http.MethodPut, "/api/admin/storage/7", "k", `{"items":`).Code)
	assert.Equal(t, http.StatusBadRequest, e.doJSON(http.MethodPut, "/api/admin/storage/x", "k", `{"items":[]}`).Code)

	tooMany := "{\"items\":[" + strings.TrimSuffix(strings.Repeat(`{"nameid":501,"amount":1},`, item.MaxStorage+1), ",") + "]}"
	assert.Equal(t, http.StatusBadRequest, e.doJSON(http.MethodPut, "/api/admin/storage/7", "k", tooMany).Code)
}

func TestDeleteStorage(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	require.Zero(t, e.storage.SaveStorage(context.Background(), 5, &storage.Storage{
		Items: []item.Item{{NameID: 501, Amount: 1}},
	}))

	require.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/admin/storage/5", "k").Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/admin/storage/5", "k").Code, "idempotent")

	var n int64
	e.db.Model(&model.StorageItem{}).Count(&n)
	assert.Zero(t, n)
}

func TestGetGuildStorage(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	g := model.Guild{Name: "Knights"}
	require.NoError(t, e.db.Create(&g).Error)
	require.Zero(t, e.storage.SaveGuildStorage(context.Background(), &storage.GuildStorage{
		GuildID: g.GuildID, Items: []item.Item{{NameID: 1201, Amount: 1, ExpireTime: 99}},
	}))

	w := e.do(http.MethodGet, fmt.Sprintf("/api/admin/guild-storage/%d", g.GuildID), "k")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(1), resp["count"])
	first := resp["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(0), first["expire_time"])
}

func TestGetGuildStorage_NotFound(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/admin/guild-storage/77", "k").Code)
}

func TestDeleteGuildStorage(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	g := model.Guild{Name: "Disbanded"}
	require.NoError(t, e.db.Create(&g).Error)
	require.Zero(t, e.storage.SaveGuildStorage(context.Background(), &storage.GuildStorage{
		GuildID: g.GuildID, Items: []item.Item{{NameID: 501, Amount: 1}},
	}))

	w := e.do(http.MethodDelete, fmt.Sprintf("/api/admin/guild-storage/%d", g.GuildID), "k")
	require.Equal(t, http.StatusOK, w.Code)

	var n int64
	e.db.Model(&model.GuildStorageItem{}).Count(&n)
	assert.Zero(t, n)
}

// ---- Sessions ----

func TestListSessions(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	e.sm.Register(session.New(2, "10.0.0.1:1"))
	e.sm.Register(session.New(1, "10.0.0.1:2"))

	w := e.do(http.MethodGet, "/api/admin/sessions", "k")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(2), resp["count"])
	first := resp["sessions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(1), first["account_id"])
}

func TestKickSession(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	frontEnd, cancel, err := e.events.Subscribe(context.Background(), session.EventsChannel)
	require.NoError(t, err)
	defer cancel()
	e.sm.Register(session.New(9, "r"))

	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/admin/kick/9", "k").Code)
	select {
	case msg := <-frontEnd:
		assert.Equal(t, "kick:9", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("front end saw no kick")
	}
	assert.False(t, e.sm.IsOnline(9))
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/api/admin/kick/9", "k").Code)
}

func TestKickSession_InvalidID(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/admin/kick/abc", "k").Code)
}

// ---- Links / scheduler ----

func TestListLinks(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	w := e.do(http.MethodGet, "/api/admin/links", "k")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(1), resp["count"])
	first := resp["links"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "10.0.0.2:40000", first["remote"])
}

func TestListSchedulerTasks(t *testing.T) {
	e := newAdminRouter(t, "k", "")
	w := e.do(http.MethodGet, "/api/admin/scheduler", "k")
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode(t, w)["tasks"].([]interface{})
	require.Len(t, tasks, 1)
	assert.Equal(t, "stats", tasks[0].(map[string]interface{})["name"])
}
