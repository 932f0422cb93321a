package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"attachget/internal/model"
)

type Store interface {
	Get(ctx context.Context, id string) (model.Run, error)
	List(ctx context.Context) ([]model.Run, error)
}

// New возвращает роутер статуса запусков. Логирование запросов и
// перехват паник делает logger.HTTPLogging снаружи.
func New(store Store, apiBasePath string) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	api := router.Group(apiBasePath)
	{
		api.GET("/ping", Ping())
		api.GET("/runs", ListRuns(store))
		api.GET("/runs/:id", GetRun(store))
	}

	return router
}

func Ping() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type listRunsResponse struct {
	Runs []model.Run `json:"runs"`
}

func ListRuns(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := newHelper(c, "ListRuns")

		runs, err := s.List(h.Ctx())
		if err != nil {
			h.WriteError(err)
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}

		h.WriteResponse(listRunsResponse{Runs: runs}, http.StatusOK)
	}
}

func GetRun(s Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := newHelper(c, "GetRun")

		runID, err := h.GetID()
		if err != nil {
			h.WriteError(err)
			return
		}

		run, err := s.Get(h.Ctx(), runID)
		if err != nil {
			h.WriteError(err)
			return
		}

		h.WriteResponse(run, http.StatusOK)
	}
}
