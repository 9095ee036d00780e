package handler

import (
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chatline/backend/api/transport"
	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/pkg/httpcontext"
	"github.com/chatline/backend/repository"
	chatUC "github.com/chatline/backend/usecase/chat"
)

type ChatHandler struct {
	baseHandler
	uc *chatUC.UseCase
}

func NewChatHandler(uc *chatUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

func (h *ChatHandler) Create(ctx *fasthttp.RequestCtx) {
	var req transport.CreateChatRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.Type == "" {
		req.Type = string(domain.ChatTypeSupport)
	}
	if req.Priority == 0 {
		req.Priority = 5
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	chat, err := h.uc.CreateChat(stdCtx, h.principal(ctx), req.Title, domain.ChatType(req.Type), req.Priority)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, chat)
}

func (h *ChatHandler) Get(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	if id == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	chat, err := h.uc.GetChat(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, chat)
}

func (h *ChatHandler) List(ctx *fasthttp.RequestCtx) {
	filter := repository.ChatFilter{
		Status:     domain.ChatStatus(ctx.QueryArgs().Peek("status")),
		OperatorID: string(ctx.QueryArgs().Peek("operator_id")),
		Limit:      parseInt(string(ctx.QueryArgs().Peek("limit")), 50),
		Offset:     parseInt(string(ctx.QueryArgs().Peek("offset")), 0),
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	chats, err := h.uc.ListChats(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, chats)
}

func (h *ChatHandler) Close(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	var req transport.CloseChatRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.CloseChat(stdCtx, h.principal(ctx), id, req.Reason); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

func (h *ChatHandler) Abandon(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.AbandonChat(stdCtx, h.principal(ctx), id); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

func (h *ChatHandler) SendMessage(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	var req transport.SendMessageRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	message, err := h.uc.SendMessage(stdCtx, h.principal(ctx), id, req.Body)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, message)
}

func (h *ChatHandler) ListMessages(ctx *fasthttp.RequestCtx) {
	filter := repository.MessageFilter{
		ChatID: h.pathParam(ctx, "id"),
		Limit:  parseInt(string(ctx.QueryArgs().Peek("limit")), 50),
		Offset: parseInt(string(ctx.QueryArgs().Peek("offset")), 0),
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	messages, err := h.uc.ListMessages(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, messages)
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}
