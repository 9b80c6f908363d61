package handler

import "github.com/gin-gonic/gin"

// Handlers collects everything the router mounts.
type Handlers struct {
	Constraints  *ConstraintHandler
	Generations  *GenerationHandler
	Versions     *VersionHandler
	Conflicts    *ConflictHandler
	Optimization *OptimizationHandler
}

// RegisterRoutes mounts the timetable API under the configured prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers) {
	api := r.Group(prefix)

	timetable := api.Group("/timetable")

	timetable.GET("/current", h.Versions.Current)

	constraints := timetable.Group("/constraints")
	constraints.POST("", h.Constraints.Create)
	constraints.GET("", h.Constraints.List)
	constraints.GET("/:id", h.Constraints.Get)
	constraints.PUT("/:id", h.Constraints.Update)
	constraints.DELETE("/:id", h.Constraints.Delete)

	generations := timetable.Group("/generations")
	generations.POST("", h.Generations.Submit)
	generations.GET("", h.Generations.History)
	generations.GET("/:id", h.Generations.Status)
	generations.POST("/:id/cancel", h.Generations.Cancel)

	versions := timetable.Group("/versions")
	versions.GET("", h.Versions.List)
	versions.GET("/:id", h.Versions.Get)
	versions.DELETE("/:id", h.Versions.Discard)
	versions.POST("/:id/publish", h.Versions.Publish)
	versions.POST("/:id/archive", h.Versions.Archive)
	versions.POST("/:id/adjust", h.Versions.Adjust)
	versions.GET("/:id/adjustments", h.Versions.Adjustments)
	versions.POST("/:id/regenerate", h.Versions.Regenerate)
	versions.GET("/:id/export", h.Versions.Export)
	versions.GET("/:id/conflicts", h.Conflicts.List)
	versions.POST("/:id/conflicts/rescan", h.Conflicts.Rescan)
	versions.GET("/:id/suggestions", h.Optimization.Suggestions)
	versions.POST("/:id/optimize", h.Optimization.Apply)

	conflicts := timetable.Group("/conflicts")
	conflicts.POST("/:id/resolve", h.Conflicts.Resolve)
	conflicts.POST("/bulk-resolve", h.Conflicts.BulkResolve)
}
