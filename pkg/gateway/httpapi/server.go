package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/IELS2001/m16go/pkg/gateway"
)

const shutdownGrace = 5 * time.Second

// Server exposes the bridge over HTTP: a status endpoint, command
// endpoints, Prometheus metrics, and a websocket live frame feed.
type Server struct {
	Bridge *gateway.Bridge
	srv    *http.Server
}

// New wires the routes onto addr. Nothing listens until Run.
func New(addr string, b *gateway.Bridge) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		Bridge: b,
		srv: &http.Server{
			Addr:        addr,
			Handler:     r,
			ReadTimeout: 30 * time.Second,
			// No write timeout: the live feed holds its connection.
		},
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(b.Metrics.Handler()))

	v1 := r.Group("/v1")
	{
		v1.GET("/status", s.getStatus)
		v1.POST("/mode", s.postMode)
		v1.POST("/channel", s.postChannel)
		v1.POST("/power", s.postPower)
		v1.POST("/send", s.postSend)
		v1.POST("/report", s.postReport)
		v1.GET("/live", gin.WrapH(websocket.Handler(s.live)))
	}
	return s
}

// Name implements framework.Named.
func (s *Server) Name() string { return "httpapi" }

// Run implements framework.Runnable. It serves until the context ends,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		glog.Infof("http: listening on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return ctx.Err()
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Bridge.Status())
}

func (s *Server) postMode(c *gin.Context) {
	s.execute(c, gateway.CommandMsg{Op: gateway.OpSwitchMode})
}

func (s *Server) postChannel(c *gin.Context) {
	var req struct {
		Channel int `json:"channel"`
	}
	if !s.bind(c, &req) {
		return
	}
	s.execute(c, gateway.CommandMsg{Op: gateway.OpSetChannel, Channel: req.Channel})
}

func (s *Server) postPower(c *gin.Context) {
	var req struct {
		Power int `json:"power"`
	}
	if !s.bind(c, &req) {
		return
	}
	s.execute(c, gateway.CommandMsg{Op: gateway.OpSetPower, Power: req.Power})
}

func (s *Server) postSend(c *gin.Context) {
	var req struct {
		Unit    uint8  `json:"unit"`
		Command string `json:"command"`
		Data    uint16 `json:"data"`
	}
	if !s.bind(c, &req) {
		return
	}
	s.execute(c, gateway.CommandMsg{
		Op: gateway.OpSend, Unit: req.Unit, Command: req.Command, Data: req.Data,
	})
}

func (s *Server) postReport(c *gin.Context) {
	s.execute(c, gateway.CommandMsg{Op: gateway.OpRequestReport})
}

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// execute runs the command on the bridge loop. The result body always
// carries the error text; the status only separates success from
// failure since the device cannot tell us more.
func (s *Server) execute(c *gin.Context, msg gateway.CommandMsg) {
	res := s.Bridge.Execute(c.Request.Context(), msg)
	code := http.StatusOK
	if !res.OK {
		code = http.StatusBadGateway
	}
	c.JSON(code, res)
}

// live streams decoded frames as JSON text messages until the client
// goes away.
func (s *Server) live(conn *websocket.Conn) {
	defer conn.Close()
	feed, cancel := s.Bridge.SubscribeFrames()
	defer cancel()
	for msg := range feed {
		data, err := json.Marshal(msg)
		if err != nil {
			glog.Errorf("live: marshal: %v", err)
			continue
		}
		if err := websocket.Message.Send(conn, string(data)); err != nil {
			glog.V(1).Infof("live: client gone: %v", err)
			return
		}
	}
}
