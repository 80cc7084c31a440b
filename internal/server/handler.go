package server

import (
	"bytes"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sensorable/yolomark"
)

// ErrMissingDir is returned by a SinkOpener when a request names no directory and there is no
// default.
var ErrMissingDir = errors.New("missing output directory")

type imagesResponse struct {
	Images  []string `json:"images"`
	Index   int      `json:"index"`
	Current string   `json:"current"`
}

type classesResponse struct {
	Classes []yolomark.Class `json:"classes"`
	Active  string           `json:"active"`
}

// boxJSON is a box in display space.
type boxJSON struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Class string  `json:"class"`
}

type boxesResponse struct {
	Boxes    []boxJSON `json:"boxes"`
	Selected int       `json:"selected"` // -1 without a selection.
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) imagesState() imagesResponse {
	current, _ := s.session.Current()
	return imagesResponse{
		Images:  s.session.Images(),
		Index:   s.session.Index(),
		Current: current,
	}
}

func (s *Server) openFolder(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.session.OpenFolder(req.Path); err != nil {
		s.log.Warn("Failed to open folder", zap.String("path", req.Path), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.imagesState())
}

func (s *Server) listImages(c *gin.Context) {
	c.JSON(http.StatusOK, s.imagesState())
}

func (s *Server) navigate(c *gin.Context) {
	var req struct {
		Delta int  `json:"delta"`
		Index *int `json:"index"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Index != nil {
		s.session.SetIndex(*req.Index)
	} else {
		s.session.Navigate(req.Delta)
	}
	c.JSON(http.StatusOK, s.imagesState())
}

func (s *Server) setViewport(c *gin.Context) {
	var req yolomark.Size
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.session.SetViewport(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.session.Viewport())
}

func (s *Server) classesState() classesResponse {
	active, _ := s.session.Classes.Active()
	return classesResponse{Classes: s.session.Classes.Classes(), Active: active}
}

func (s *Server) listClasses(c *gin.Context) {
	c.JSON(http.StatusOK, s.classesState())
}

// addClass ignores duplicate names, like the class list of the desktop tool.
func (s *Server) addClass(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.session.AddClass(req.Name)
	c.JSON(http.StatusOK, s.classesState())
}

func (s *Server) removeClass(c *gin.Context) {
	s.session.RemoveClass(c.Param("name"))
	c.JSON(http.StatusOK, s.classesState())
}

func (s *Server) selectClass(c *gin.Context) {
	if err := s.session.SelectClass(c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.classesState())
}

func (s *Server) boxesState() (boxesResponse, error) {
	boxes, err := s.session.DisplayBoxes()
	if err != nil {
		return boxesResponse{}, err
	}
	resp := boxesResponse{Boxes: make([]boxJSON, len(boxes)), Selected: -1}
	for i, b := range boxes {
		resp.Boxes[i] = boxJSON{X1: b.Coords[0], Y1: b.Coords[1], X2: b.Coords[2], Y2: b.Coords[3],
			Class: b.Class}
	}
	if i, ok := s.session.Selected(); ok {
		resp.Selected = i
	}
	return resp, nil
}

// sessionError writes the status for an error returned by a session operation.
func sessionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, yolomark.ErrNoClassSelected), errors.Is(err, yolomark.ErrInvalidSplit),
		errors.Is(err, ErrMissingDir):
		status = http.StatusBadRequest
	case errors.Is(err, yolomark.ErrNoImage):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) listBoxes(c *gin.Context) {
	resp, err := s.boxesState()
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// drawBox adds a box from the start and end points of a drag gesture.
func (s *Server) drawBox(c *gin.Context) {
	var req struct {
		X1 float64 `json:"x1"`
		Y1 float64 `json:"y1"`
		X2 float64 `json:"x2"`
		Y2 float64 `json:"y2"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := s.session.Draw(yolomark.Point{X: req.X1, Y: req.Y1}, yolomark.Point{X: req.X2, Y: req.Y2})
	if err != nil {
		sessionError(c, err)
		return
	}
	resp, err := s.boxesState()
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) selectAt(c *gin.Context) {
	var req yolomark.Point
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.session.SelectAt(req)
	s.listBoxes(c)
}

func (s *Server) deleteSelected(c *gin.Context) {
	s.session.DeleteSelected()
	s.listBoxes(c)
}

func (s *Server) render(c *gin.Context) {
	img, err := s.session.Render()
	if err != nil {
		sessionError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		sessionError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) save(c *gin.Context) {
	var req struct {
		Dir string `json:"dir"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sink, err := s.opts.OpenSink(c.Request.Context(), req.Dir)
	if err != nil {
		sessionError(c, err)
		return
	}
	report, err := s.session.Save(c.Request.Context(), sink, s.opts.Save)
	if err != nil {
		s.log.Error("Save failed", zap.String("dir", req.Dir), zap.Error(err))
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) export(c *gin.Context) {
	var req struct {
		Dir        string   `json:"dir"`
		TrainSplit *float64 `json:"train_split"`
		Seed       *int64   `json:"seed"`
		SplitMode  string   `json:"split_mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := s.opts.Export
	if req.TrainSplit != nil {
		opts.TrainFraction = *req.TrainSplit
	}
	if req.Seed != nil {
		opts.Seed = req.Seed
	}
	if req.SplitMode != "" {
		mode, err := yolomark.ParseSplitMode(req.SplitMode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.Mode = mode
	}
	if err := yolomark.ValidateTrainFraction(opts.TrainFraction); err != nil {
		sessionError(c, err)
		return
	}

	sink, err := s.opts.OpenSink(c.Request.Context(), req.Dir)
	if err != nil {
		sessionError(c, err)
		return
	}
	report, err := s.session.Export(c.Request.Context(), sink, opts)
	if err != nil {
		s.log.Error("Export failed", zap.String("dir", req.Dir), zap.Error(err))
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) load(c *gin.Context) {
	var req struct {
		Dir string `json:"dir" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := s.session.LoadAnnotations(filepath.Clean(req.Dir), s.opts.Save.LabelOptions)
	if err != nil {
		if yolomark.IsNotSaved(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boxes": n, "classes": s.session.Classes.Classes()})
}
