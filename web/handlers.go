package web

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"go.viam.com/impedance/impedance"
	"go.viam.com/impedance/kinematics"
)

// ModeRequest is the body of POST /api/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// ValuesRequest carries one value per joint, or a six element twist or wrench.
type ValuesRequest struct {
	Values []float64 `json:"values"`
}

// ValueRequest carries a single gain.
type ValueRequest struct {
	Value *float64 `json:"value"`
}

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Command string `json:"command"`
}

// PoseRequest is a cartesian target: translation in meters, orientation as a unit quaternion in
// w, x, y, z order.
type PoseRequest struct {
	Translation []float64 `json:"translation"`
	Orientation []float64 `json:"orientation"`
}

// Pose converts the request to a kinematics.Pose.
func (r PoseRequest) Pose() (kinematics.Pose, error) {
	if len(r.Translation) != 3 {
		return kinematics.Pose{}, errors.Errorf("translation needs 3 values, got %d", len(r.Translation))
	}
	if len(r.Orientation) != 4 {
		return kinematics.Pose{}, errors.Errorf("orientation needs 4 values, got %d", len(r.Orientation))
	}
	q := mgl64.Quat{W: r.Orientation[0], V: mgl64.Vec3{r.Orientation[1], r.Orientation[2], r.Orientation[3]}}
	if q.Len() < 1e-9 {
		return kinematics.Pose{}, errors.New("orientation must not be the zero quaternion")
	}
	return kinematics.Pose{
		Translation: mgl64.Vec3{r.Translation[0], r.Translation[1], r.Translation[2]},
		Orientation: q.Normalize(),
	}, nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleLoop(c *fiber.Ctx) error {
	if s.opts.Loop == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no control loop attached",
		})
	}
	return c.JSON(s.opts.Loop.Stats())
}

func (s *Server) handleMode(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	mode, err := impedance.ParseControlMode(req.Mode)
	if err != nil {
		return badRequest(c, err)
	}
	if err := s.ctrl.RequestMode(mode); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(fiber.Map{
		"requested": mode.String(),
	})
}

func (s *Server) handleGains(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Gains().Snapshot())
}

func (s *Server) handleSetGains(kind impedance.GainKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ValuesRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
		if err := s.ctrl.Gains().Set(kind, req.Values); err != nil {
			return badRequest(c, err)
		}
		return s.handleGains(c)
	}
}

func (s *Server) handleSetUniform(kind impedance.GainKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ValueRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
		if req.Value == nil {
			return badRequest(c, errors.New("value is required"))
		}
		if err := s.ctrl.Gains().SetUniform(kind, *req.Value); err != nil {
			return badRequest(c, err)
		}
		return s.handleGains(c)
	}
}

func (s *Server) handleSetJoint(kind impedance.GainKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		idx, err := c.ParamsInt("joint")
		if err != nil {
			return badRequest(c, errors.Wrap(err, "joint index"))
		}
		var req ValueRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
		if req.Value == nil {
			return badRequest(c, errors.New("value is required"))
		}
		if err := s.ctrl.Gains().SetJoint(kind, idx, *req.Value); err != nil {
			return badRequest(c, err)
		}
		return s.handleGains(c)
	}
}

func (s *Server) handleCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := s.ctrl.CommandString(req.Command); err != nil {
		return badRequest(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleVector(set func([]float64) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ValuesRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
		if err := set(req.Values); err != nil {
			return badRequest(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (s *Server) handleCartesianTarget(c *fiber.Ctx) error {
	var req PoseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	pose, err := req.Pose()
	if err != nil {
		return badRequest(c, err)
	}
	if err := s.ctrl.SetCartesianTarget(pose); err != nil {
		return badRequest(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
