// Package api exposes the HTTP surface: the WhatsApp webhook, the training
// intake form, the streaming chat endpoint and the evidence audit view.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oraculo-ai/oraculo/chat"
	"github.com/oraculo-ai/oraculo/training"
	"github.com/oraculo-ai/oraculo/whatsapp"
)

// Enqueuer submits an asynchronous ingestion job for a training record.
type Enqueuer interface {
	Enqueue(id uuid.UUID) error
}

// Answerer runs the answer pipeline, streaming tokens through emit. The
// returned id identifies the persisted question so its sources can be looked
// up afterwards; uuid.Nil means no question row was written.
type Answerer interface {
	Answer(ctx context.Context, question string, emit func(string) error) (string, uuid.UUID)
}

type Server struct {
	router    *gin.Engine
	trainings training.Repository
	queue     Enqueuer
	answerer  Answerer
	chatRepo  chat.Repository
	buffer    *whatsapp.Buffer
	logger    *zap.Logger
}

func NewServer(trainings training.Repository, queue Enqueuer, answerer Answerer, chatRepo chat.Repository, buffer *whatsapp.Buffer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		trainings: trainings,
		queue:     queue,
		answerer:  answerer,
		chatRepo:  chatRepo,
		buffer:    buffer,
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.POST("/webhook/whatsapp", s.handleWebhook)
	s.router.POST("/training", s.handleCreateTraining)
	s.router.POST("/chat", s.handleChat)
	s.router.GET("/questions/:id/sources", s.handleQuestionSources)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	s.logger.Info("http server starting", zap.String("addr", addr))
	return s.router.Run(addr)
}

func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}

	phone, text, err := whatsapp.ParseInbound(body)
	if err != nil {
		s.logger.Warn("rejected webhook payload", zap.Error(err))
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	s.buffer.Append(phone, text)
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleCreateTraining(c *gin.Context) {
	record := &training.Record{
		ID:      uuid.New(),
		Site:    strings.TrimSpace(c.PostForm("site")),
		Content: strings.TrimSpace(c.PostForm("content")),
	}

	if file, err := c.FormFile("document"); err == nil && file != nil {
		opened, openErr := file.Open()
		if openErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable document upload"})
			return
		}
		data, readErr := io.ReadAll(opened)
		opened.Close()
		if readErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable document upload"})
			return
		}
		record.DocumentName = file.Filename
		record.Document = data
	}

	if record.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide a site, content or document"})
		return
	}

	if err := s.trainings.Create(c.Request.Context(), record); err != nil {
		s.logger.Error("failed to store training record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store training record"})
		return
	}

	if err := s.queue.Enqueue(record.ID); err != nil {
		s.logger.Error("failed to enqueue ingestion job",
			zap.String("record_id", record.ID.String()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule ingestion"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": record.ID.String()})
}

type chatRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	_, questionID := s.answerer.Answer(c.Request.Context(), req.Question, func(token string) error {
		if err := writeSSEData(c.Writer, token); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})

	// Hand the question id to the client so it can fetch the evidence behind
	// the answer from the sources endpoint.
	if questionID != uuid.Nil {
		fmt.Fprintf(c.Writer, "event: question\ndata: %s\n\n", questionID)
	}
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// writeSSEData frames one payload as a server-sent event. A payload with
// embedded newlines becomes multiple data lines inside the same event, so a
// multi-line token cannot break the framing.
func writeSSEData(w io.Writer, payload string) error {
	for _, line := range strings.Split(payload, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

func (s *Server) handleQuestionSources(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question id"})
		return
	}

	evidence, err := s.chatRepo.EvidenceFor(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("failed to load question sources", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sources"})
		return
	}

	sources := make([]gin.H, len(evidence))
	for i, item := range evidence {
		sources[i] = gin.H{
			"source":  chat.SourceLabel(item.Source),
			"content": item.Text,
		}
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}
