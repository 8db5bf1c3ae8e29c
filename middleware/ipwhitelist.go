package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// allowList matches client addresses against single IPs and CIDR ranges.
type allowList struct {
	ips  map[string]bool
	nets []*net.IPNet
}

func newAllowList(entries []string) *allowList {
	al := &allowList{ips: make(map[string]bool, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, n, err := net.ParseCIDR(e); err == nil {
			al.nets = append(al.nets, n)
			continue
		}
		al.ips[e] = true
	}
	return al
}

func (al *allowList) empty() bool { return len(al.ips) == 0 && len(al.nets) == 0 }

func (al *allowList) allows(ip string) bool {
	if al.ips[ip] {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range al.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// IPWhitelist only lets through clients whose IP is listed, either exactly
// or inside a CIDR range. An empty list allows every client.
func IPWhitelist(entries []string) gin.HandlerFunc {
	al := newAllowList(entries)
	return func(c *gin.Context) {
		if al.empty() {
			c.Next()
			return
		}
		if !al.allows(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}
