package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/runbooker/internal/inference"
	"github.com/mohammad-safakhou/runbooker/internal/synth"
	"github.com/mohammad-safakhou/runbooker/models"
)

type healthResponse struct {
	Status     string            `json:"status"`
	Inference  *inference.Status `json:"inference,omitempty"`
	SearchDocs *uint64           `json:"search_docs,omitempty"`
}

func (s *Server) health(c echo.Context) error {
	resp := healthResponse{Status: "ok"}
	if s.deps.Runtime != nil {
		st := s.deps.Runtime.Status()
		resp.Inference = &st
		if st.State != inference.StateRunning || st.Model == "" {
			resp.Status = "degraded"
		}
	}
	if s.deps.Index != nil {
		if n, err := s.deps.Index.Count(); err == nil {
			resp.SearchDocs = &n
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) importTickets(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	report, err := s.deps.Pipeline.Import(c.Request().Context(), raw, fh.Filename, c.FormValue("encoding"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) listImports(c echo.Context) error {
	items, err := s.deps.Store.ListImports(c.Request().Context(), queryInt(c, "limit", 50))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) topicCounts(c echo.Context) error {
	counts, err := s.deps.Store.TopicCounts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) topicTickets(c echo.Context) error {
	topic, err := models.ParseTopic(c.Param("topic"))
	if err != nil {
		return err
	}
	items, err := s.deps.Store.ListTicketsByTopic(c.Request().Context(), topic, queryInt(c, "limit", 100))
	if err != nil {
		return err
	}
	if items == nil {
		items = []models.Ticket{}
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) getTicket(c echo.Context) error {
	t, err := s.deps.Store.GetTicket(c.Request().Context(), c.Param("number"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) searchTickets(c echo.Context) error {
	if s.deps.Index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search index disabled")
	}
	hits, err := s.deps.Index.Search(c.QueryParam("q"), queryInt(c, "limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hits)
}

func (s *Server) reclassify(c echo.Context) error {
	only, _ := strconv.ParseBool(c.QueryParam("only_unclassified"))
	report, err := s.deps.Pipeline.Reclassify(c.Request().Context(), only)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) listRunbooks(c echo.Context) error {
	items, err := s.deps.Store.ListRunbooks(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []models.Runbook{}
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) getRunbook(c echo.Context) error {
	topic, err := models.ParseTopic(c.Param("topic"))
	if err != nil {
		return err
	}
	rb, err := s.deps.Store.GetRunbook(c.Request().Context(), topic)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rb)
}

func (s *Server) getRunbookHTML(c echo.Context) error {
	topic, err := models.ParseTopic(c.Param("topic"))
	if err != nil {
		return err
	}
	rb, err := s.deps.Store.GetRunbook(c.Request().Context(), topic)
	if err != nil {
		return err
	}
	html, err := synth.RenderHTML(rb.Markdown)
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, html)
}

func (s *Server) synthesize(c echo.Context) error {
	topic, err := models.ParseTopic(c.Param("topic"))
	if err != nil {
		return err
	}
	rb, err := s.deps.Pipeline.Synthesize(c.Request().Context(), topic)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rb)
}

func queryInt(c echo.Context, name string, def int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
