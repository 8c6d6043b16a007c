package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/roadeye/internal/core/accident"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

type AccidentAPI struct {
	core accident.Core
}

func NewAccidentAPI(core accident.Core) AccidentAPI {
	return AccidentAPI{core: core}
}

func RegisterAccident(r gin.IRouter, api AccidentAPI, mid ...gin.HandlerFunc) {
	group := r.Group("/api/v1/accident", mid...)
	group.POST("/create", api.create)
	group.GET("/all", web.WrapH(api.findAll))
	group.GET("/summary", web.WrapH(api.summary))
	group.GET("/:id", api.get)
	group.DELETE("/:id", web.WrapH(api.del))
}

func (a AccidentAPI) create(c *gin.Context) {
	var in accident.AddAccidentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing required fields", "detail": err.Error()})
		return
	}
	out, err := a.core.AddAccident(c.Request.Context(), &in)
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "message": "Accident record created", "id": out.ID})
}

// findAll 默认返回全部记录，带 size 参数时分页
func (a AccidentAPI) findAll(c *gin.Context, in *accident.FindAccidentInput) (gin.H, error) {
	items, total, err := a.core.FindAccidents(c.Request.Context(), in)
	if err != nil {
		return nil, err
	}
	return gin.H{"status": "success", "datas": items, "total": total}, nil
}

func (a AccidentAPI) summary(c *gin.Context, _ *struct{}) ([]accident.MonthlyCount, error) {
	return a.core.MonthlySummary(c.Request.Context())
}

func parseID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, reason.ErrBadRequest.Withf("invalid id[%s]", c.Param("id"))
	}
	return id, nil
}

func (a AccidentAPI) get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		web.Fail(c, err)
		return
	}
	out, err := a.core.LookupAccident(c.Request.Context(), id)
	if err != nil {
		web.Fail(c, err)
		return
	}
	if out == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Accident not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": out})
}

func (a AccidentAPI) del(c *gin.Context, _ *struct{}) (*accident.Accident, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	return a.core.DelAccident(c.Request.Context(), id)
}
