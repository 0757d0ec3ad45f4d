package web

import (
	"errors"
	"io"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-pitchside/pkg/camera"
	"github.com/teslashibe/go-pitchside/pkg/hub"
	"github.com/teslashibe/go-pitchside/pkg/posestream"
	"github.com/teslashibe/go-pitchside/pkg/protocol"
	"github.com/teslashibe/go-pitchside/pkg/upload"
)

// snapshotQuality is the JPEG quality of scaled frame snapshots.
const snapshotQuality = 85

func unavailable(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": what + " not configured",
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	if s.cfg.Metrics == nil {
		return fiber.ErrNotFound
	}
	return adaptor.HTTPHandler(s.cfg.Metrics)(c)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.cfg.Controller == nil {
		return unavailable(c, "stream")
	}
	return c.JSON(s.cfg.Controller.Status())
}

// handleStart starts streaming. Acquisition and connection failures are
// reported with distinct statuses so the dashboard can tell the user what
// went wrong.
func (s *Server) handleStart(c *fiber.Ctx) error {
	if s.cfg.Controller == nil {
		return unavailable(c, "stream")
	}

	err := s.cfg.Controller.Start(c.UserContext())
	if err == nil {
		return c.JSON(s.cfg.Controller.Status())
	}
	if errors.Is(err, posestream.ErrAlreadyStreaming) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	status := fiber.StatusInternalServerError
	kind := protocol.KindOf(err)
	switch kind {
	case protocol.KindAcquisition:
		status = fiber.StatusServiceUnavailable
	case protocol.KindTransportOpen:
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kind,
	})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if s.cfg.Controller == nil {
		return unavailable(c, "stream")
	}
	s.cfg.Controller.Stop()
	return c.JSON(s.cfg.Controller.Status())
}

// handleFrame returns the latest annotated frame. With ?width= the frame is
// scaled down and re-encoded; otherwise the bytes are sent as received.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	width := c.QueryInt("width", 0)
	if width < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "width must be positive"})
	}

	var data []byte
	if width == 0 {
		data = s.canvas.Payload()
	} else {
		var err error
		data, err = s.canvas.Snapshot(width, snapshotQuality)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if data == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no frame available"})
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.cfg.Camera == nil {
		return unavailable(c, "camera")
	}
	return c.JSON(s.cfg.Camera.GetConfig())
}

// handleUpdateCamera applies a partial update, for example
// {"preset": "480p"} or {"framerate": 15}. Changes take effect on the next
// session.
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.cfg.Camera == nil {
		return unavailable(c, "camera")
	}

	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := s.cfg.Camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.cfg.Camera.GetConfig())
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"names":   camera.PresetNames(),
		"presets": camera.Presets(),
	})
}

// handleUpload forwards a video to the pose service and streams the
// processed video back as it arrives.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	if s.cfg.Uploader == nil {
		return unavailable(c, "upload")
	}

	fh, err := c.FormFile(upload.FieldName)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing file field"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	res, body, err := s.cfg.Uploader.Open(c.UserContext(), filepath.Base(fh.Filename), f)
	if err != nil {
		f.Close()
		s.logger.Warn("upload failed", "name", fh.Filename, "error", err)
		var apiErr *upload.APIError
		if errors.As(err, &apiErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":  apiErr.Message,
				"status": apiErr.StatusCode,
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	c.Attachment(res.Name)
	if res.ContentType != "" {
		c.Set(fiber.HeaderContentType, res.ContentType)
	}
	// The stream is closed once the response is written; the upload file
	// goes with it.
	return c.SendStream(&proxyBody{ReadCloser: body, file: f}, int(res.Bytes))
}

// proxyBody is a processed video stream that also releases the uploaded
// file when closed.
type proxyBody struct {
	io.ReadCloser
	file io.Closer
}

func (b *proxyBody) Close() error {
	err := b.ReadCloser.Close()
	b.file.Close()
	return err
}

func (s *Server) handleTeamStats(c *fiber.Ctx) error {
	if s.cfg.Stats == nil {
		return unavailable(c, "stats")
	}
	return c.JSON(fiber.Map{
		"record":  s.cfg.Stats.TeamRecord(),
		"matches": s.cfg.Stats.Team.Matches,
		"monthly": s.cfg.Stats.Team.Monthly,
	})
}

func (s *Server) handlePlayerStats(c *fiber.Ctx) error {
	if s.cfg.Stats == nil {
		return unavailable(c, "stats")
	}
	return c.JSON(fiber.Map{
		"players":     s.cfg.Stats.Players,
		"top_scorers": s.cfg.Stats.TopScorers(c.QueryInt("top", 4)),
		"positions":   s.cfg.Stats.PositionCounts(),
	})
}

func (s *Server) handleBallStats(c *fiber.Ctx) error {
	if s.cfg.Stats == nil {
		return unavailable(c, "stats")
	}
	return c.JSON(fiber.Map{
		"detections":      s.cfg.Stats.Ball,
		"per_frame":       s.cfg.Stats.DetectionsPerFrame(),
		"mean_confidence": s.cfg.Stats.MeanConfidence(),
	})
}

func (s *Server) handleAnnotatedWS(c *websocket.Conn) {
	var initial []hub.Message
	if data := s.canvas.Payload(); data != nil {
		initial = append(initial, hub.NewBinaryMessage(data))
	}
	hub.NewClient(s.frameHub, c, initial...).Run()
}

// handleStatusWS sends the current status on connect, then every update.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if s.cfg.Controller != nil {
		if msg, err := protocol.NewStatusMessage(s.cfg.Controller.Status()); err == nil {
			if data, err := msg.Bytes(); err == nil {
				initial = append(initial, hub.NewJSONMessage(data))
			}
		}
	}
	hub.NewClient(s.statusHub, c, initial...).Run()
}
