// Package server - HTTP-Router und Server-Setup fuer lc0
// Beinhaltet: Server-Struct, Router-Registrierung, Host-Middleware
package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/lczero/lc0go/envconfig"
	"github.com/lczero/lc0go/neural"
	"github.com/lczero/lc0go/version"
)

var mode string = gin.ReleaseMode

// Server haelt Registry, live Instanzen und die Evaluate-Grenzen
type Server struct {
	addr      net.Addr
	registry  *neural.Registry
	instances *instanceStore

	// sem begrenzt gleichzeitige Evaluate-Anfragen
	sem      *semaphore.Weighted
	maxBatch int
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.ReleaseMode
	}

	gin.SetMode(mode)
}

// NewServer creates a server creating backends from r. addr is the
// listening address; nil disables the host check.
func NewServer(r *neural.Registry, addr net.Addr) *Server {
	return &Server{
		addr:      addr,
		registry:  r,
		instances: newInstanceStore(),
		sem:       semaphore.NewWeighted(int64(max(1, envconfig.NumParallel()))),
		maxBatch:  int(max(1, envconfig.MaxBatch())),
	}
}

// Close closes every live instance.
func (s *Server) Close() {
	for _, inst := range s.instances.drain() {
		inst.close()
	}
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if parsed, _, err := net.ParseCIDR(a.String()); err == nil && parsed.String() == ip.String() {
				return true
			}
		}
	}
	return false
}

// allowedHost prueft ob der Host-Header auf diese Maschine zeigt
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	for _, tld := range []string{"localhost", "local", "internal"} {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert fremde Host-Header solange der Server
// nur auf Loopback lauscht
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		slog.Warn("rejected request host", "host", c.Request.Host)
		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.New()
	r.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "lc0 is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "lc0 is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Backends und Instanzen
	r.GET("/api/backends", s.ListBackendsHandler)
	r.GET("/api/instances", s.ListInstancesHandler)
	r.POST("/api/instances", s.CreateInstanceHandler)
	r.DELETE("/api/instances/:id", s.DeleteInstanceHandler)

	// Inference
	r.POST("/api/evaluate", s.EvaluateHandler)

	return r
}
