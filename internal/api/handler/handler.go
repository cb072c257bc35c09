package handler

import "dienstplan/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Roster *RosterHandler
	Config *ConfigHandler
	Export *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Roster: NewRosterHandler(svc.Roster),
		Config: NewConfigHandler(svc.Config, svc.Catalog),
		Export: NewExportHandler(svc.Export),
	}
}
