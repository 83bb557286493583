package handler

import (
	"context"
	"os/exec"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/resonance/api/internal/config"
)

type HealthHandler struct {
	tools *config.ToolsConfig
	redis *redis.Client
}

func NewHealthHandler(tools *config.ToolsConfig, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		tools: tools,
		redis: redisClient,
	}
}

// Check handles GET /health
// @Summary      Health check
// @Description  Reports whether the media tools are on PATH and redis answers. A missing tool degrades the status.
// @Tags         Health
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	tools := fiber.Map{}
	status := "ok"
	for name, bin := range map[string]string{
		"yt-dlp":  h.tools.YtdlpPath,
		"ffmpeg":  h.tools.FfmpegPath,
		"ffprobe": h.tools.FfprobePath,
	} {
		_, err := exec.LookPath(bin)
		tools[name] = err == nil
		if err != nil {
			status = "degraded"
		}
	}

	redisUp := false
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		redisUp = h.redis.Ping(ctx).Err() == nil
		cancel()
	}

	return c.JSON(fiber.Map{
		"status": status,
		"tools":  tools,
		"redis":  redisUp,
	})
}
