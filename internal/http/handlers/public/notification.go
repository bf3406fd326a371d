package public

import (
	"strconv"

	handlershared "github.com/laptop-next/internal/http/handlers/shared"
	"github.com/laptop-next/internal/http/response"
	"github.com/laptop-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListNotifications 获取通知列表
func (h *Handler) ListNotifications(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	notifications, total, err := h.NotificationService.ListByUser(repository.NotificationListFilter{
		Page:       page,
		PageSize:   pageSize,
		UserID:     uid,
		Type:       c.Query("type"),
		OnlyUnread: c.Query("only_unread") == "1",
	})
	if err != nil {
		respondError(c, response.CodeInternal, "通知查询失败", err)
		return
	}

	response.SuccessWithPage(c, notifications, response.NewPagination(page, pageSize, total))
}

// MarkNotificationRead 标记通知为已读
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	notificationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || notificationID == 0 {
		respondError(c, response.CodeBadRequest, "通知ID不合法", nil)
		return
	}

	if err := h.NotificationService.MarkRead(uint(notificationID), uid); err != nil {
		respondError(c, response.CodeInternal, "通知更新失败", err)
		return
	}

	response.SuccessWithMsg(c, "已标记为已读", nil)
}
