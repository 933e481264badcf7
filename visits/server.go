// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ServerOptions configures the review API.
type ServerOptions struct {
	Addr  string
	Merge MergeOptions
	Batch BatchOptions
}

// Server exposes the review workflow over HTTP.
type Server struct {
	repo      Repository
	suggester *Suggester
	opts      ServerOptions
}

// NewServer creates the review API over repo. Recompute and nearby queries
// go through suggester. An empty Addr listens on localhost:8080.
func NewServer(repo Repository, suggester *Suggester, opts ServerOptions) *Server {
	if opts.Addr == "" {
		opts.Addr = "localhost:8080"
	}

	return &Server{
		repo:      repo,
		suggester: suggester,
		opts:      opts,
	}
}

// Register adds the API routes to r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/api/review", s.getReviewQueue)
	r.GET("/api/visits/:id", s.getVisit)
	r.POST("/api/visits/:id/confirm", s.confirmVisit)
	r.POST("/api/visits/:id/reject", s.rejectVisit)
	r.PUT("/api/visits/:id/notes", s.updateNotes)
	r.POST("/api/visits/merge", s.mergeVisits)
	r.GET("/api/merge-groups", s.listMergeGroups)
	r.POST("/api/merge-groups/auto", s.autoMerge)
	r.POST("/api/suggestions/recompute", s.recomputeSuggestions)
	r.GET("/api/restaurants/nearby", s.nearbyRestaurants)
}

func (s *Server) Run() error {
	r := gin.Default()
	s.Register(r)

	log.Printf("🍽️  Review API listening on http://%s", s.opts.Addr)

	return r.Run(s.opts.Addr)
}

// abortWithError maps engine errors to HTTP statuses.
func abortWithError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case IsNotFound(err):
		status = http.StatusNotFound
	case IsValidationError(err):
		status = http.StatusBadRequest
	case IsBusyError(err):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Printf("🛑 %s %s: %v", ctx.Request.Method, ctx.Request.URL.Path, err)
	}

	ctx.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) getReviewQueue(ctx *gin.Context) {
	items, err := BuildReviewQueue(ctx.Request.Context(), s.repo)
	if err != nil {
		abortWithError(ctx, err)

		return
	}

	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})

		return
	}

	total := len(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	ctx.JSON(http.StatusOK, gin.H{
		"total": total,
		"items": items,
	})
}

func (s *Server) getVisit(ctx *gin.Context) {
	item, err := GetReviewItem(ctx.Request.Context(), s.repo, ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, item)
}

type confirmRequest struct {
	ReferenceID *int64         `json:"reference_id"`
	Restaurant  *NewRestaurant `json:"restaurant"`
}

func (s *Server) confirmVisit(ctx *gin.Context) {
	var req confirmRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	var (
		v   *Visit
		err error
	)

	switch {
	case req.ReferenceID != nil && req.Restaurant == nil:
		v, err = ConfirmVisit(ctx.Request.Context(), s.repo, ctx.Param("id"), *req.ReferenceID)
	case req.Restaurant != nil && req.ReferenceID == nil:
		v, err = ConfirmVisitManual(ctx.Request.Context(), s.repo, ctx.Param("id"), *req.Restaurant)
	default:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of reference_id or restaurant is required"})

		return
	}

	if err != nil {
		abortWithError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, v)
}

func (s *Server) rejectVisit(ctx *gin.Context) {
	v, err := RejectVisit(ctx.Request.Context(), s.repo, ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, v)
}

func (s *Server) updateNotes(ctx *gin.Context) {
	var req struct {
		Notes string `json:"notes"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	v, err := UpdateNotes(ctx.Request.Context(), s.repo, ctx.Param("id"), req.Notes)
	if err != nil {
		abortWithError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, v)
}

func (s *Server) mergeVisits(ctx *gin.Context) {
	var req struct {
		TargetID string `json:"target_id" binding:"required"`
		SourceID string `json:"source_id" binding:"required"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	v, err := MergeVisits(ctx.Request.Context(), s.repo, req.TargetID, req.SourceID)
	if err != nil {
		abortWithError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, v)
}

func (s *Server) listMergeGroups(ctx *gin.Context) {
	groups, err := FindMergeGroups(ctx.Request.Context(), s.repo, s.opts.Merge)
	if err != nil {
		abortWithError(ctx, err)

		return
	}

	if groups == nil {
		groups = []*MergeGroup{}
	}

	ctx.JSON(http.StatusOK, groups)
}

func (s *Server) autoMerge(ctx *gin.Context) {
	result, err := AutoMerge(ctx.Request.Context(), s.repo, s.opts.Merge)
	if err != nil {
		abortWithError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"groups":        result.Groups,
		"merged":        result.Merged,
		"failed_groups": result.FailedGroups,
		"errors":        errorStrings(result.Errors),
	})
}

func (s *Server) recomputeSuggestions(ctx *gin.Context) {
	result, err := s.suggester.RecomputePending(ctx.Request.Context(), s.repo, s.opts.Batch)
	if err != nil {
		abortWithError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"total":     result.Total,
		"processed": result.Processed,
		"failed":    result.Failed,
		"errors":    errorStrings(result.Errors),
	})
}

func (s *Server) nearbyRestaurants(ctx *gin.Context) {
	lat, errLat := strconv.ParseFloat(ctx.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(ctx.Query("lon"), 64)

	if errLat != nil || errLon != nil || validateCoordinates(lat, lon) != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "valid lat and lon query parameters are required"})

		return
	}

	opts := s.suggester.Options()

	radius := opts.SearchRadius
	if r := ctx.Query("radius"); r != "" {
		parsed, err := strconv.ParseFloat(r, 64)
		if err != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid radius parameter"})

			return
		}

		radius = parsed
	}

	nearby, err := s.suggester.Index().Nearby(ctx.Request.Context(), lat, lon, opts.MaxSuggestions, radius)
	if err != nil {
		abortWithError(ctx, err)

		return
	}

	if nearby == nil {
		nearby = []NearbyRestaurant{}
	}

	ctx.JSON(http.StatusOK, nearby)
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}

	return out
}
