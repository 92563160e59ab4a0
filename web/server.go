// Package web serves the controller over HTTP: a REST API for modes, gains and strategy inputs,
// and a websocket that streams telemetry.
package web

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/websocket/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/impedance/control"
	"go.viam.com/impedance/impedance"
	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/kinematics"
	"go.viam.com/impedance/logging"
)

// writeWait bounds a single websocket write.
const writeWait = 10 * time.Second

// DebugHeader marks a request for debug logging even when the server logger is above DEBUG. The
// header value tags the resulting entries.
const DebugHeader = "X-Impedance-Debug"

// Controller is what the API drives. *impedance.Controller implements it.
type Controller interface {
	NumJoints() int
	Status() impedance.Status
	Gains() *impedance.GainStore
	RequestMode(mode impedance.ControlMode) error
	CommandString(text string) error
	SetTwist(twist []float64) error
	SetWrench(wrench []float64) error
	SetCartesianTarget(pose kinematics.Pose) error
	SetJointTarget(q joint.Vector) error
}

// LoopStats reports control loop health. *control.Loop implements it.
type LoopStats interface {
	Stats() control.Stats
}

// Options configures a Server.
type Options struct {
	BindAddress string
	// CORSOrigins is a comma separated list; empty allows every origin.
	CORSOrigins string
	Loop        LoopStats
}

// Server is the web server. Requests never touch the control cycle directly; everything goes
// through the controller's thread safe setters.
type Server struct {
	logger logging.Logger
	ctrl   Controller
	opts   Options
	app    *fiber.App
	hub    *Hub

	mu      sync.Mutex
	ln      net.Listener
	workers *utils.StoppableWorkers
}

// New builds the routes. Start begins serving.
func New(logger logging.Logger, ctrl Controller, opts Options) *Server {
	s := &Server{
		logger: logger,
		ctrl:   ctrl,
		opts:   opts,
		hub:    NewHub(logger.Sublogger("hub")),
	}

	app := fiber.New(fiber.Config{
		AppName:               "impedance",
		DisableStartupMessage: true,
	})
	corsCfg := cors.Config{}
	if opts.CORSOrigins != "" {
		corsCfg.AllowOrigins = opts.CORSOrigins
	}
	app.Use(cors.New(corsCfg))
	app.Use(s.logRequest)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/loop", s.handleLoop)
	api.Post("/mode", s.handleMode)
	api.Get("/gains", s.handleGains)
	api.Post("/stiffness", s.handleSetGains(impedance.Stiffness))
	api.Post("/damping", s.handleSetGains(impedance.Damping))
	api.Post("/stiffness/uniform", s.handleSetUniform(impedance.Stiffness))
	api.Post("/damping/uniform", s.handleSetUniform(impedance.Damping))
	api.Put("/stiffness/:joint", s.handleSetJoint(impedance.Stiffness))
	api.Put("/damping/:joint", s.handleSetJoint(impedance.Damping))
	api.Post("/command", s.handleCommand)
	api.Post("/cartesian/twist", s.handleVector(ctrl.SetTwist))
	api.Post("/cartesian/wrench", s.handleVector(ctrl.SetWrench))
	api.Post("/cartesian/target", s.handleCartesianTarget)
	api.Post("/joint/target", s.handleVector(func(q []float64) error {
		return ctrl.SetJointTarget(q)
	}))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(s.handleTelemetryWS))

	s.app = app
	return s
}

// logRequest writes one debug entry per request. Requests carrying DebugHeader get a debug-mode
// user context, so they are logged at any level. Strings taken from the request are copied since
// fasthttp reuses its buffers once the handler returns.
func (s *Server) logRequest(c *fiber.Ctx) error {
	if key := c.Get(DebugHeader); key != "" {
		c.SetUserContext(logging.EnableDebugMode(c.UserContext(), fiberutils.CopyString(key)))
	}
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		status = ferr.Code
	}
	s.logger.CDebugw(c.UserContext(), "api request",
		"method", c.Method(), "path", fiberutils.CopyString(c.Path()), "status", status, "elapsed", time.Since(start))
	return err
}

// Hub returns the telemetry hub. Register it with the controller's publisher.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on the bind address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return errors.New("web server already started")
	}
	ln, err := net.Listen("tcp", s.opts.BindAddress)
	if err != nil {
		return errors.Wrap(err, "listening")
	}
	s.ln = ln
	s.logger.Infow("serving", "address", ln.Addr().String())
	s.workers = utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		if err := s.app.Listener(ln); err != nil {
			s.logger.Errorw("web server stopped", "error", err)
		}
	})
	return nil
}

// Addr returns the address being served, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close disconnects telemetry clients and stops serving.
func (s *Server) Close() error {
	s.hub.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers == nil {
		return nil
	}
	err := s.app.Shutdown()
	s.workers.Stop()
	s.workers = nil
	return err
}

func (s *Server) handleTelemetryWS(conn *websocket.Conn) {
	client := s.hub.register()
	if client == nil {
		return
	}
	defer s.hub.unregister(client)

	// clients never send anything, but reading notices when they leave
	gone := make(chan struct{})
	utils.PanicCapturingGo(func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer func() {
		utils.UncheckedError(conn.Close())
		<-gone
	}()

	for {
		select {
		case data, ok := <-client.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				utils.UncheckedError(conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
