package server

import (
	"bufio"
	"context"
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/taxquill/taxquill/internal/engine"
	"github.com/taxquill/taxquill/internal/model"
)

// ownerHeader identifies the acting owner. Authentication itself happens
// upstream; by the time a request reaches us the header is trusted.
const ownerHeader = "X-Owner-ID"

func ownerID(c *fiber.Ctx) (string, error) {
	owner := c.Get(ownerHeader)
	if owner == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "missing "+ownerHeader+" header")
	}
	return owner, nil
}

type classifyRequest struct {
	TransactionIDs []string `json:"transactionIds"`
}

// handleClassify starts a classification run and streams its events as
// newline-delimited JSON. The run is detached from the request context on
// purpose: a client that disconnects mid-stream leaves the remaining batches
// to finish and persist, since classification is never wasted work.
func (s *Server) handleClassify(c *fiber.Ctx) error {
	var req classifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	events, err := s.pipeline.Classify(context.Background(), req.TransactionIDs)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		enc := json.NewEncoder(w)
		for event := range events {
			if err := enc.Encode(event); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				// Client went away; drain so the channel's producer
				// is not our concern (it is buffered anyway).
				return
			}
		}
	}))
	return nil
}

type autoSortRequest struct {
	DeductionPercent *float64 `json:"deductionPercent"`
	VendorNormalized string   `json:"vendorNormalized"`
	QuickLabel       string   `json:"quickLabel"`
	BusinessPurpose  string   `json:"businessPurpose"`
	Category         string   `json:"category"`
	TaxYear          int      `json:"taxYear"`
}

func (s *Server) handleAutoSort(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	var req autoSortRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	count, err := s.pipeline.ApplyAutoSort(c.UserContext(), engine.ApplyRuleRequest{
		OwnerID:         owner,
		Vendor:          req.VendorNormalized,
		QuickLabel:      req.QuickLabel,
		BusinessPurpose: req.BusinessPurpose,
		Category:        req.Category,
		DeductionPct:    req.DeductionPercent,
		TaxYear:         req.TaxYear,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"updatedCount": count})
}

func (s *Server) handleSimilar(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	taxYear, _ := strconv.Atoi(c.Query("taxYear"))
	matches, err := s.pipeline.FindSimilar(c.UserContext(), engine.SimilarQuery{
		OwnerID:   owner,
		Vendor:    c.Query("vendor"),
		ExcludeID: c.Query("excludeId"),
		Status:    model.TransactionStatus(c.Query("status")),
		Kind:      model.TransactionKind(c.Query("kind")),
		TaxYear:   taxYear,
	})
	if err != nil {
		return err
	}

	if matches == nil {
		matches = []model.Transaction{}
	}
	return c.JSON(matches)
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	taxYear, _ := strconv.Atoi(c.Query("taxYear"))
	quarter, _ := strconv.Atoi(c.Query("quarter"))

	summary, err := s.pipeline.Summary(c.UserContext(), owner, taxYear, quarter)
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

func (s *Server) handleMarkPersonal(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.pipeline.MarkPersonal(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": string(model.StatusPersonal)})
}
