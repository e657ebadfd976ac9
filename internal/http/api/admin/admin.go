package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/teamleap/crmauto/internal/config"
	"github.com/teamleap/crmauto/internal/http/api/admin/handlers"
	"github.com/teamleap/crmauto/internal/models"
	"github.com/teamleap/crmauto/internal/security"
)

// RegisterAdminRoutes registers the admin authentication and automation
// rule management routes under /v0/admin.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig) {
	if r == nil || db == nil {
		return
	}

	admin := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	admin.POST("/login", authHandler.Login)

	authed := admin.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	stageTaskHandler := handlers.NewStageTaskRuleHandler(db)
	authed.GET("/automation/stage-task-rules", stageTaskHandler.List)
	authed.POST("/automation/stage-task-rules", stageTaskHandler.Create)
	authed.GET("/automation/stage-task-rules/:id", stageTaskHandler.Get)
	authed.PATCH("/automation/stage-task-rules/:id", stageTaskHandler.Update)
	authed.DELETE("/automation/stage-task-rules/:id", stageTaskHandler.Delete)

	sequenceHandler := handlers.NewStageSequenceRuleHandler(db)
	authed.GET("/automation/stage-sequence-rules", sequenceHandler.List)
	authed.POST("/automation/stage-sequence-rules", sequenceHandler.Create)
	authed.GET("/automation/stage-sequence-rules/:id", sequenceHandler.Get)
	authed.PATCH("/automation/stage-sequence-rules/:id", sequenceHandler.Update)
	authed.DELETE("/automation/stage-sequence-rules/:id", sequenceHandler.Delete)

	staleHandler := handlers.NewStaleDealRuleHandler(db)
	authed.GET("/automation/stale-deal-rules", staleHandler.List)
	authed.POST("/automation/stale-deal-rules", staleHandler.Create)
	authed.GET("/automation/stale-deal-rules/:id", staleHandler.Get)
	authed.PATCH("/automation/stale-deal-rules/:id", staleHandler.Update)
	authed.DELETE("/automation/stale-deal-rules/:id", staleHandler.Delete)

	wonHandler := handlers.NewWonChecklistRuleHandler(db)
	authed.GET("/automation/won-checklist-rules", wonHandler.List)
	authed.POST("/automation/won-checklist-rules", wonHandler.Create)
	authed.GET("/automation/won-checklist-rules/:id", wonHandler.Get)
	authed.PATCH("/automation/won-checklist-rules/:id", wonHandler.Update)
	authed.DELETE("/automation/won-checklist-rules/:id", wonHandler.Delete)

	overdueHandler := handlers.NewOverdueTaskRuleHandler(db)
	authed.GET("/automation/overdue-task-rules", overdueHandler.List)
	authed.POST("/automation/overdue-task-rules", overdueHandler.Create)
	authed.GET("/automation/overdue-task-rules/:id", overdueHandler.Get)
	authed.PATCH("/automation/overdue-task-rules/:id", overdueHandler.Update)
	authed.DELETE("/automation/overdue-task-rules/:id", overdueHandler.Delete)
}

// adminAuthMiddleware validates admin JWTs and loads the tenant and user
// into the request context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}
		if user.Role != models.UserRoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("tenantID", user.TenantID)
		c.Next()
	}
}
