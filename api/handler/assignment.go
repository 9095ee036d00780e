package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chatline/backend/api/transport"
	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/pkg/httpcontext"
	"github.com/chatline/backend/repository"
	assignmentUC "github.com/chatline/backend/usecase/assignment"
	chatUC "github.com/chatline/backend/usecase/chat"
)

type AssignmentHandler struct {
	baseHandler
	coordinator *assignmentUC.Coordinator
	chats       *chatUC.UseCase
}

func NewAssignmentHandler(coordinator *assignmentUC.Coordinator, chats *chatUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		baseHandler: newBaseHandler(adapter, logger),
		coordinator: coordinator,
		chats:       chats,
	}
}

// Assign routes a pending chat to the best available operator.
func (h *AssignmentHandler) Assign(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	operatorID, err := h.coordinator.AssignChatToOperator(stdCtx, h.principal(ctx), id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"operator_id": operatorID})
}

func (h *AssignmentHandler) Transfer(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	var req transport.TransferChatRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.coordinator.TransferChat(stdCtx, h.principal(ctx), id, req.OperatorID, req.Reason); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

func (h *AssignmentHandler) Release(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.coordinator.ReleaseChatFromOperator(stdCtx, h.principal(ctx), id); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// Queue lists chats waiting for an operator.
func (h *AssignmentHandler) Queue(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	pending, err := h.chats.ListChats(stdCtx, repository.ChatFilter{
		Status: domain.ChatStatusPending,
		Limit:  parseInt(string(ctx.QueryArgs().Peek("limit")), 50),
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, pending)
}
