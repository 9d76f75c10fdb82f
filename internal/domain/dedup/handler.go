package dedup

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medirec/medirec/internal/match"
	"github.com/medirec/medirec/internal/platform/auth"
	"github.com/medirec/medirec/internal/platform/db"
	"github.com/medirec/medirec/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "registrar"))
	read.GET("/duplicates", h.ListCandidates)
	read.GET("/duplicates/:id", h.GetCandidate)

	write := api.Group("", auth.RequireRole("admin", "registrar"))
	write.POST("/duplicates/check", h.Check)
	write.POST("/duplicates/:id/resolve", h.Resolve)
}

type checkRequest struct {
	PatientID  string `json:"patient_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name"`
	BirthDate  string `json:"birth_date"`
	Phone      string `json:"phone"`
	Street     string `json:"address_street"`
	City       string `json:"address_city"`
}

// Check scores the submitted demographics against the clinic's patients.
// With patient_id set, flagged pairs also land in the review queue; without
// it the call is a pre-registration dry run.
func (h *Handler) Check(c echo.Context) error {
	var req checkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	patientID := uuid.Nil
	if req.PatientID != "" {
		var err error
		patientID, err = uuid.Parse(req.PatientID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
	}

	var birthDate time.Time
	if req.BirthDate != "" {
		var err error
		birthDate, err = time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
		}
	}

	ctx := c.Request().Context()
	fp := match.NewFingerprint(patientID, match.PatientInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		MiddleName: req.MiddleName,
		BirthDate:  birthDate,
		Phone:      req.Phone,
		Street:     req.Street,
		City:       req.City,
	})

	result, err := h.svc.Check(ctx, db.ClinicFromContext(ctx), fp, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListCandidates(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := CandidateFilter{Status: Status(c.QueryParam("status"))}

	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = id
	}
	if raw := c.QueryParam("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "min_score must be in [0,1]")
		}
		f.MinScore = v
	}
	f.HighConfidenceOnly = c.QueryParam("high_confidence") == "true"

	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		f.CreatedFrom = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		// Inclusive upper bound on the calendar day.
		f.CreatedTo = t.AddDate(0, 0, 1)
	}

	ctx := c.Request().Context()
	candidates, total, err := h.svc.ListCandidates(ctx, db.ClinicFromContext(ctx), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(candidates, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetCandidate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	candidate, err := h.svc.GetCandidate(ctx, db.ClinicFromContext(ctx), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, candidate)
}

type resolveRequest struct {
	Decision       string          `json:"decision"`
	SurvivorID     string          `json:"survivor_id"`
	MergeDecisions []MergeDecision `json:"merge_decisions"`
}

type resolveResponse struct {
	Candidate *DuplicateCandidate `json:"candidate"`
	Outcome   *MergeOutcome       `json:"outcome,omitempty"`
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	in := ResolveInput{
		Decision:       Decision(req.Decision),
		MergeDecisions: req.MergeDecisions,
	}
	if req.SurvivorID != "" {
		in.SurvivorID, err = uuid.Parse(req.SurvivorID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid survivor_id")
		}
	}

	ctx := c.Request().Context()
	in.ReviewerID = auth.UserIDFromContext(ctx)

	candidate, outcome, err := h.svc.Resolve(ctx, db.ClinicFromContext(ctx), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resolveResponse{Candidate: candidate, Outcome: outcome})
}

// httpError maps engine errors onto HTTP statuses.
func httpError(err error) error {
	switch {
	case IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case IsConflict(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
