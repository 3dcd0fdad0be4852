// Package api exposes the medication tracker to the UI process over a
// loopback HTTP API plus a websocket change feed.
package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/medikeep/medikeep/internal/config"
	"github.com/medikeep/medikeep/internal/dailylog"
	errs "github.com/medikeep/medikeep/internal/errors"
	"github.com/medikeep/medikeep/internal/history"
	"github.com/medikeep/medikeep/internal/medicine"
	"github.com/medikeep/medikeep/internal/metrics"
	"github.com/medikeep/medikeep/internal/patient"
	"github.com/medikeep/medikeep/internal/reminder"
	"github.com/medikeep/medikeep/internal/tracker"
	"go.uber.org/zap"
)

// Server handles HTTP API and WebSocket
type Server struct {
	app       *fiber.App
	config    *config.Config
	medicines *medicine.Store
	logs      *dailylog.Store
	patients  *patient.Store
	tracker   *tracker.Tracker
	scheduler *reminder.Scheduler
	hub       *Hub
	logger    *zap.Logger
}

// New creates a new API server
func New(cfg *config.Config, meds *medicine.Store, logs *dailylog.Store, patients *patient.Store, trk *tracker.Tracker, scheduler *reminder.Scheduler, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		medicines: meds,
		logs:      logs,
		patients:  patients,
		tracker:   trk,
		scheduler: scheduler,
		hub:       NewHub(logger),
		logger:    logger,
	}

	s.setupRoutes()
	return s
}

// Hub returns the websocket change feed, for wiring into the tracker
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Server.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check and metrics
	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", s.handleMetricsPrometheus)
	s.app.Get("/api/metrics", s.handleMetricsJSON)

	api := s.app.Group("/api")
	api.Use(s.countRequests())

	// Medicines
	api.Get("/medicines", s.handleListMedicines)
	api.Post("/medicines", s.handleCreateMedicine)
	api.Get("/medicines/:id", s.handleGetMedicine)
	api.Put("/medicines/:id", s.handleUpdateMedicine)
	api.Delete("/medicines/:id", s.handleDeleteMedicine)
	api.Post("/medicines/:id/toggle", s.handleToggleDose)

	// Daily logs
	api.Get("/logs", s.handleListLogs)
	api.Get("/logs/:date", s.handleGetLog)
	api.Delete("/logs/month", s.handleDeleteLogMonth)
	api.Delete("/logs", s.handleClearLogs)

	// Adherence history
	api.Get("/history", s.handleHistory)
	api.Get("/history/stats", s.handleHistoryStats)

	// Registration
	api.Get("/patients", s.handleListPatients)
	api.Post("/patients", s.handleCreatePatient)
	api.Get("/patients/current", s.handleCurrentPatient)
	api.Get("/responsible-persons", s.handleListResponsiblePersons)
	api.Post("/responsible-persons", s.handleCreateResponsiblePerson)
	api.Delete("/registration", s.handleClearRegistration)

	// Reminders and reconcile
	api.Get("/reminders", s.handleListReminders)
	api.Post("/reconcile", s.handleReconcile)

	// WebSocket change feed
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app. Used by handler tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) countRequests() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		metrics.RecordRequest(err == nil && c.Response().StatusCode() < 400)
		return err
	}
}

// fail maps domain errors onto HTTP statuses by error code family
func (s *Server) fail(c *fiber.Ctx, err error) error {
	code := errs.GetCode(err)
	status := 500
	switch {
	case strings.HasPrefix(code, "VALID_"):
		status = 400
	case code == errs.ErrMedicineNotFound.Code,
		code == errs.ErrPatientNotFound.Code,
		code == errs.ErrResponsibleNotFound.Code,
		code == errs.ErrLogNotFound.Code:
		status = 404
	}
	if status == 500 {
		s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}

// ==================== Handlers ====================

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleMetricsPrometheus(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/plain; version=0.0.4")
	return c.SendString(metrics.Default().Prometheus())
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(metrics.Default().Snapshot())
}

func (s *Server) handleListMedicines(c *fiber.Ctx) error {
	meds, err := s.medicines.List()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(meds)
}

func (s *Server) handleCreateMedicine(c *fiber.Ctx) error {
	var req medicine.CreateParams
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := s.medicines.Create(req)
	if err != nil {
		return s.fail(c, err)
	}

	if err := s.scheduler.SyncMedicine(med); err != nil {
		s.logger.Error("Failed to sync reminders", zap.Int("medicine_id", med.ID), zap.Error(err))
	}
	s.tracker.NotifyDataChanged("medicines")

	return c.Status(201).JSON(med)
}

func (s *Server) handleGetMedicine(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}
	med, err := s.medicines.Get(id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleUpdateMedicine(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	var req medicine.Update
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := s.medicines.UpdateMedicine(id, req)
	if err != nil {
		return s.fail(c, err)
	}

	if err := s.scheduler.SyncMedicine(med); err != nil {
		s.logger.Error("Failed to sync reminders", zap.Int("medicine_id", med.ID), zap.Error(err))
	}
	s.tracker.NotifyDataChanged("medicines")

	return c.JSON(med)
}

func (s *Server) handleDeleteMedicine(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	if err := s.medicines.Delete(id); err != nil {
		return s.fail(c, err)
	}

	if err := s.scheduler.CancelMedicine(id); err != nil {
		s.logger.Error("Failed to cancel reminders", zap.Int("medicine_id", id), zap.Error(err))
	}
	s.tracker.NotifyDataChanged("medicines")

	return c.SendStatus(204)
}

func (s *Server) handleToggleDose(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	var req struct {
		Time string `json:"time"`
	}
	if err := c.BodyParser(&req); err != nil || req.Time == "" {
		return c.Status(400).JSON(fiber.Map{"error": "time is required"})
	}

	result, err := s.tracker.ToggleDose(id, req.Time)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(result)
}

func (s *Server) handleListLogs(c *fiber.Ctx) error {
	logs, err := s.logs.GetAll()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(logs)
}

func (s *Server) handleGetLog(c *fiber.Ctx) error {
	date := c.Params("date")
	entry, err := s.logs.Get(date)
	if err != nil {
		return s.fail(c, err)
	}
	if entry == nil {
		return s.fail(c, errs.ErrLogNotFound)
	}
	return c.JSON(entry)
}

func (s *Server) handleDeleteLogMonth(c *fiber.Ctx) error {
	month := c.QueryInt("month")
	year := c.QueryInt("year")
	if month < 1 || month > 12 || year == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "month and year are required"})
	}

	if err := s.logs.DeleteAllForMonth(time.Month(month), year); err != nil {
		return s.fail(c, err)
	}
	s.tracker.NotifyDataChanged("logs")
	return c.SendStatus(204)
}

func (s *Server) handleClearLogs(c *fiber.Ctx) error {
	if err := s.logs.ClearAll(); err != nil {
		return s.fail(c, err)
	}
	s.tracker.NotifyDataChanged("logs")
	return c.SendStatus(204)
}

func (s *Server) loadEntries() ([]history.Entry, error) {
	logs, err := s.logs.GetAll()
	if err != nil {
		return nil, err
	}
	meds, err := s.medicines.List()
	if err != nil {
		return nil, err
	}
	return history.BuildEntries(logs, meds), nil
}

// historyFilter builds a history.Filter from query parameters:
// weekday (0=Sunday..6), month (1..12), year, taken (true/false).
func historyFilter(c *fiber.Ctx) history.Filter {
	var f history.Filter
	if v := c.Query("weekday"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 6 {
			wd := time.Weekday(n)
			f.Weekday = &wd
		}
	}
	if v := c.Query("month"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 12 {
			m := time.Month(n)
			f.Month = &m
		}
	}
	f.Year = c.QueryInt("year")
	if v := c.Query("taken"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Taken = &b
		}
	}
	return f
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	entries, err := s.loadEntries()
	if err != nil {
		return s.fail(c, err)
	}

	entries = history.FilterEntries(entries, historyFilter(c))

	sortBy := c.Query("sort", history.ByDate)
	desc := c.QueryBool("desc", sortBy == history.ByDate)
	history.SortEntries(entries, sortBy, desc)

	return c.JSON(entries)
}

func (s *Server) handleHistoryStats(c *fiber.Ctx) error {
	entries, err := s.loadEntries()
	if err != nil {
		return s.fail(c, err)
	}
	entries = history.FilterEntries(entries, historyFilter(c))
	return c.JSON(history.Summarize(entries))
}

func (s *Server) handleListPatients(c *fiber.Ctx) error {
	patients, err := s.patients.Patients()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(patients)
}

func (s *Server) handleCreatePatient(c *fiber.Ctx) error {
	var req patient.SaveParams
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	p, err := s.patients.SavePatient(req)
	if err != nil {
		return s.fail(c, err)
	}
	s.tracker.NotifyDataChanged("patients")
	return c.Status(201).JSON(p)
}

func (s *Server) handleCurrentPatient(c *fiber.Ctx) error {
	p, err := s.patients.Current()
	if err != nil {
		return s.fail(c, err)
	}
	if p == nil {
		return s.fail(c, errs.ErrPatientNotFound)
	}
	return c.JSON(p)
}

func (s *Server) handleListResponsiblePersons(c *fiber.Ctx) error {
	persons, err := s.patients.ResponsiblePersons()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(persons)
}

func (s *Server) handleCreateResponsiblePerson(c *fiber.Ctx) error {
	var req patient.SaveParams
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	person, err := s.patients.SaveResponsiblePerson(req)
	if err != nil {
		return s.fail(c, err)
	}
	s.tracker.NotifyDataChanged("patients")
	return c.Status(201).JSON(person)
}

func (s *Server) handleClearRegistration(c *fiber.Ctx) error {
	if err := s.patients.ClearAll(); err != nil {
		return s.fail(c, err)
	}
	s.tracker.NotifyDataChanged("patients")
	return c.SendStatus(204)
}

func (s *Server) handleListReminders(c *fiber.Ctx) error {
	jobs, err := s.scheduler.ListScheduled()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(jobs)
}

func (s *Server) handleReconcile(c *fiber.Ctx) error {
	if err := s.tracker.Reconcile(); err != nil {
		return s.fail(c, err)
	}

	entry, err := s.logs.Get(s.tracker.Today())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(entry)
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	s.hub.register(c)
	defer func() {
		s.hub.unregister(c)
		c.Close()
	}()

	// The feed is push-only; reads just detect the client going away.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
