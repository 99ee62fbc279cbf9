package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aysenurcaglar/snake-oil-game/internal/db"
)

type adminRoleRequest struct {
	Name string `json:"name" binding:"required,min=2,max=64"`
}

type adminWordRequest struct {
	Word string `json:"word" binding:"required,min=2,max=64"`
}

func (s *Server) adminRouter() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api := router.Group("/admin/api", s.requireAdminToken)
	api.GET("/roles", s.handleAdminListRoles)
	api.POST("/roles", s.handleAdminCreateRole)
	api.DELETE("/roles/:id", s.handleAdminDeleteRole)
	api.GET("/words", s.handleAdminListWords)
	api.POST("/words", s.handleAdminCreateWord)
	api.DELETE("/words/:id", s.handleAdminDeleteWord)
	api.GET("/sessions/:id/events", s.handleAdminSessionEvents)
	return router
}

func (s *Server) requireAdminToken(c *gin.Context) {
	if s.cfg.AdminToken == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin token not configured"})
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
		return
	}
	c.Next()
}

func (s *Server) requireAdminDB(c *gin.Context) bool {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return false
	}
	return true
}

func (s *Server) handleAdminListRoles(c *gin.Context) {
	if !s.requireAdminDB(c) {
		return
	}
	page, perPage := parsePagination(c, 50, 200)
	var total int64
	if err := s.db.Model(&db.Role{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list roles"})
		return
	}
	var roles []db.Role
	if err := s.db.Order("name ASC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&roles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list roles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"roles":      roles,
		"pagination": paginationMeta(page, perPage, total),
	})
}

func (s *Server) handleAdminCreateRole(c *gin.Context) {
	if !s.requireAdminDB(c) {
		return
	}
	var req adminRoleRequest
	if !bindJSON(c, &req, bindMessages{
		"Name": {
			"required": "name is required",
			"min":      "name is too short",
			"max":      "name is too long",
		},
	}, "invalid role") {
		return
	}
	now := time.Now().UTC()
	role := db.Role{ID: uuid.NewString(), Name: strings.TrimSpace(req.Name), CreatedAt: now, UpdatedAt: now}
	if err := s.db.Create(&role).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "failed to create role (it may already exist)"})
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (s *Server) handleAdminDeleteRole(c *gin.Context) {
	if !s.requireAdminDB(c) {
		return
	}
	result := s.db.Delete(&db.Role{}, "id = ?", c.Param("id"))
	if result.Error != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "failed to delete role (it may be in use)"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "role not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAdminListWords(c *gin.Context) {
	if !s.requireAdminDB(c) {
		return
	}
	page, perPage := parsePagination(c, 50, 200)
	var total int64
	if err := s.db.Model(&db.Word{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list words"})
		return
	}
	var words []db.Word
	if err := s.db.Order("word ASC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&words).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list words"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"words":      words,
		"pagination": paginationMeta(page, perPage, total),
	})
}

func (s *Server) handleAdminCreateWord(c *gin.Context) {
	if !s.requireAdminDB(c) {
		return
	}
	var req adminWordRequest
	if !bindJSON(c, &req, bindMessages{
		"Word": {
			"required": "word is required",
			"min":      "word is too short",
			"max":      "word is too long",
		},
	}, "invalid word") {
		return
	}
	now := time.Now().UTC()
	word := db.Word{ID: uuid.NewString(), Word: strings.TrimSpace(req.Word), CreatedAt: now, UpdatedAt: now}
	if err := s.db.Create(&word).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "failed to create word (it may already exist)"})
		return
	}
	c.JSON(http.StatusCreated, word)
}

func (s *Server) handleAdminDeleteWord(c *gin.Context) {
	if !s.requireAdminDB(c) {
		return
	}
	result := s.db.Delete(&db.Word{}, "id = ?", c.Param("id"))
	if result.Error != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "failed to delete word (it may be in use)"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "word not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleAdminSessionEvents reads the audit timeline through the engine
// store, so it works against both Postgres and the in-memory backend.
func (s *Server) handleAdminSessionEvents(c *gin.Context) {
	sessionID := c.Param("id")
	events, err := s.store.ListEvents(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
