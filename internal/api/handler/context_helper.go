package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dienstplan/internal/dto"
	"dienstplan/internal/roster"
	"dienstplan/pkg/response"
)

// MustGetIntParam 从路径参数中提取正整数 ID。
// 解析失败时写入 400 响应，调用方应在 ok=false 时直接 return。
func MustGetIntParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		response.BadRequest(c, 10001, name+" 无效")
		return 0, false
	}
	return id, true
}

// MustGetMonth 从查询参数中提取年月。
func MustGetMonth(c *gin.Context) (int, time.Month, bool) {
	var q dto.MonthQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "year / month 无效")
		return 0, 0, false
	}
	return q.Year, time.Month(q.Month), true
}

// MustParseDate 解析请求体中的日期（2006-01-02 或 02.01.2006）
func MustParseDate(c *gin.Context, s string) (roster.Date, bool) {
	d, err := roster.ParseDate(s)
	if err != nil {
		response.BadRequest(c, 10001, "日期格式无效")
		return roster.Date{}, false
	}
	return d, true
}
