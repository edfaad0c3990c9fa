// Package api exposes the read-only polling surface consumed by
// dashboards. It never mutates core state; every handler reads one
// published snapshot.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"netsentry/pkg/types"
)

// Core is the read-only surface the server needs from the monitor.
type Core interface {
	Snapshot() types.Snapshot
	Running() bool
}

// Server wraps the HTTP query surface around a monitor.
type Server struct {
	app *fiber.App
	mon Core
	log zerolog.Logger
}

type statsResponse struct {
	DownloadSpeed float64 `json:"download_speed"`
	UploadSpeed   float64 `json:"upload_speed"`
	Connections   int     `json:"connections"`
}

type connectionResponse struct {
	Process       string `json:"process"`
	LocalAddress  string `json:"local_address"`
	RemoteAddress string `json:"remote_address"`
	Status        string `json:"status"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

// NewServer builds the router over the given monitor.
func NewServer(mon Core, log zerolog.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{DisableStartupMessage: true}),
		mon: mon,
		log: log,
	}

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/api/network/stats", s.handleStats)
	s.app.Get("/api/network/connections", s.handleConnections)
	s.app.Get("/api/network/devices", s.handleDevices)
	s.app.Get("/api/alerts", s.handleAlerts)

	return s
}

// Listen serves until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info().Str("addr", addr).Msg("api listening")
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := "ok"
	if !s.mon.Running() {
		status = "stopped"
	}
	return c.JSON(healthResponse{Status: status, Running: s.mon.Running()})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	snap := s.mon.Snapshot()
	latest := snap.Latest()
	return c.JSON(statsResponse{
		DownloadSpeed: latest.DownloadBps,
		UploadSpeed:   latest.UploadBps,
		Connections:   latest.Connections,
	})
}

func (s *Server) handleConnections(c *fiber.Ctx) error {
	snap := s.mon.Snapshot()
	out := make([]connectionResponse, 0, len(snap.Connections))
	for _, conn := range snap.Connections {
		remote := conn.RemoteAddr
		if remote == "" {
			remote = "N/A"
		}
		out = append(out, connectionResponse{
			Process:       conn.Process,
			LocalAddress:  conn.LocalAddr,
			RemoteAddress: remote,
			Status:        string(conn.Status),
		})
	}
	return c.JSON(out)
}

func (s *Server) handleDevices(c *fiber.Ctx) error {
	snap := s.mon.Snapshot()
	devices := snap.Devices
	if devices == nil {
		devices = []types.NetworkDevice{}
	}
	// The payload includes first_seen: the core is the single source of
	// truth for it, consumers never track their own.
	return c.JSON(devices)
}

func (s *Server) handleAlerts(c *fiber.Ctx) error {
	snap := s.mon.Snapshot()
	alerts := snap.Alerts
	if alerts == nil {
		alerts = []types.Alert{}
	}
	return c.JSON(alerts)
}
