package videos

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clipreview/backend/internal/transcription"
	"github.com/clipreview/backend/pkg/response"
)

// CallbackPayload is the body of a transcription callback. AssemblyAI sends
// transcript_id and status only; other senders may include the text and
// correlation id directly.
type CallbackPayload struct {
	TranscriptID  string `json:"transcript_id"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Text          string `json:"text"`
	Error         string `json:"error"`
}

// WebhookHandler receives transcription callbacks from the vendor.
type WebhookHandler struct {
	pipeline Pipeline
	signer   *transcription.CallbackSigner
	logger   *zap.Logger
}

// NewWebhookHandler creates a webhook handler. A nil signer accepts
// callbacks without a token.
func NewWebhookHandler(pipeline Pipeline, signer *transcription.CallbackSigner, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{pipeline: pipeline, signer: signer, logger: logger}
}

// Transcription handles POST /webhooks/transcription?token=.
func (h *WebhookHandler) Transcription(c *gin.Context) {
	var tokenID string
	if h.signer != nil {
		id, err := h.signer.Verify(c.Query("token"))
		if err != nil {
			h.logger.Warn("rejected transcription callback", zap.String("client_ip", c.ClientIP()), zap.Error(err))
			response.Unauthorized(c, "invalid callback token")
			return
		}
		tokenID = id
	}

	var body CallbackPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if body.Status == "" {
		response.BadRequest(c, "status required")
		return
	}
	correlationID := body.CorrelationID
	if tokenID != "" {
		if correlationID != "" && correlationID != tokenID {
			response.Unauthorized(c, "token does not match video")
			return
		}
		correlationID = tokenID
	}

	cb := transcription.Callback{
		CorrelationID: correlationID,
		JobID:         body.TranscriptID,
		Status:        body.Status,
		Text:          body.Text,
		Error:         body.Error,
	}
	if err := h.pipeline.HandleCallback(c.Request.Context(), cb); err != nil {
		h.logger.Info("transcription callback not applied",
			zap.String("video_id", correlationID),
			zap.String("transcript_id", body.TranscriptID),
			zap.Error(err),
		)
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"status": "accepted"})
}
