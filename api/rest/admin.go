package rest

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/inter"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/item"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/model"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/scheduler"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/session"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the admin key.
const AdminKeyHeader = "X-Admin-Key"

// LinkLister reports connected world processes.
type LinkLister interface {
	Links() []inter.LinkInfo
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	storage  *storage.Service
	sessions *session.Manager
	links    LinkLister
	sched    *scheduler.Scheduler
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	st *storage.Service,
	sm *session.Manager,
	links LinkLister,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{storage: st, sessions: sm, links: links, sched: sched, logger: logger}
}

// itemView is the JSON shape of one stored item.
type itemView struct {
	ID int32 `json:"id"`
	model.ItemColumns
}

func viewItems(items []item.Item) []itemView {
	out := make([]itemView, len(items))
	for i, it := range items {
		out[i] = itemView{ID: it.ID, ItemColumns: model.ColumnsOf(it)}
	}
	return out
}

func parseID(c *gin.Context, name string) (int32, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return int32(id), true
}

// GetStorage returns an account's personal storage.
// GET /api/admin/storage/:account_id
func (h *AdminHandler) GetStorage(c *gin.Context) {
	accountID, ok := parseID(c, "account_id")
	if !ok {
		return
	}
	s, err := h.storage.LoadStorage(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id": s.AccountID,
		"count":      len(s.Items),
		"items":      viewItems(s.Items),
	})
}

// PutStorage overwrites an account's personal storage with the request's
// items, matching them against the stored rows.
// PUT /api/admin/storage/:account_id
func (h *AdminHandler) PutStorage(c *gin.Context) {
	accountID, ok := parseID(c, "account_id")
	if !ok {
		return
	}
	var req struct {
		Items []itemView `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Items) > item.MaxStorage {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many items"})
		return
	}
	s := &storage.Storage{AccountID: accountID, Items: make([]item.Item, len(req.Items))}
	for i, v := range req.Items {
		s.Items[i] = v.ItemColumns.Item(v.ID)
	}
	if n := h.storage.SaveStorage(c.Request.Context(), accountID, s); n > 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error", "failed": n})
		return
	}
	h.logger.Info("admin replaced storage",
		zap.Int32("account_id", accountID), zap.Int("items", len(s.Items)))
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(s.Items)})
}

// DeleteStorage purges an account's personal storage.
// DELETE /api/admin/storage/:account_id
func (h *AdminHandler) DeleteStorage(c *gin.Context) {
	accountID, ok := parseID(c, "account_id")
	if !ok {
		return
	}
	if err := h.storage.DeleteStorage(c.Request.Context(), accountID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	h.logger.Info("admin purged storage", zap.Int32("account_id", accountID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetGuildStorage returns a guild's storage.
// GET /api/admin/guild-storage/:guild_id
func (h *AdminHandler) GetGuildStorage(c *gin.Context) {
	guildID, ok := parseID(c, "guild_id")
	if !ok {
		return
	}
	gs, err := h.storage.LoadGuildStorage(c.Request.Context(), guildID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "guild not found"})
		return
	case errors.Is(err, storage.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "guild storage exceeds capacity"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"guild_id": gs.GuildID,
		"count":    len(gs.Items),
		"items":    viewItems(gs.Items),
	})
}

// DeleteGuildStorage purges a guild's storage, as when the guild disbands.
// DELETE /api/admin/guild-storage/:guild_id
func (h *AdminHandler) DeleteGuildStorage(c *gin.Context) {
	guildID, ok := parseID(c, "guild_id")
	if !ok {
		return
	}
	if err := h.storage.DeleteGuildStorage(c.Request.Context(), guildID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	h.logger.Info("admin purged guild storage", zap.Int32("guild_id", guildID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSessions returns the accounts online at the character server.
// GET /api/admin/sessions
func (h *AdminHandler) ListSessions(c *gin.Context) {
	type sessionInfo struct {
		AccountID int32     `json:"account_id"`
		Remote    string    `json:"remote"`
		LoginAt   time.Time `json:"login_at"`
	}
	all := h.sessions.All()
	result := make([]sessionInfo, 0, len(all))
	for _, s := range all {
		result = append(result, sessionInfo{
			AccountID: s.AccountID,
			Remote:    s.Remote,
			LoginAt:   s.LoginAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": result, "count": len(result)})
}

// KickSession forcibly disconnects an account.
// POST /api/admin/kick/:account_id
func (h *AdminHandler) KickSession(c *gin.Context) {
	accountID, ok := parseID(c, "account_id")
	if !ok {
		return
	}
	if !h.sessions.IsOnline(accountID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not online"})
		return
	}
	if _, err := h.sessions.Kick(c.Request.Context(), accountID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "kick not delivered"})
		return
	}
	h.logger.Info("admin kicked account", zap.Int32("account_id", accountID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListLinks returns the connected world processes.
// GET /api/admin/links
func (h *AdminHandler) ListLinks(c *gin.Context) {
	links := h.links.Links()
	c.JSON(http.StatusOK, gin.H{"links": links, "count": len(links)})
}

// ListSchedulerTasks returns the periodic tasks and their run counts.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header against
// a bcrypt hash, or the plain key when no hash is configured. With neither
// configured all admin endpoints answer 503.
func AdminAuth(adminKey, adminKeyHash string) gin.HandlerFunc {
	hash := []byte(adminKeyHash)
	return func(c *gin.Context) {
		key := c.GetHeader(AdminKeyHeader)
		switch {
		case adminKeyHash != "":
			if key == "" || bcrypt.CompareHashAndPassword(hash, []byte(key)) != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		case adminKey != "":
			if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		c.Next()
	}
}
