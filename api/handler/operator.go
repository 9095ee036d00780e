package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chatline/backend/api/transport"
	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/pkg/httpcontext"
	operatorUC "github.com/chatline/backend/usecase/operator"
)

type OperatorHandler struct {
	baseHandler
	uc *operatorUC.UseCase
}

func NewOperatorHandler(uc *operatorUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *OperatorHandler {
	return &OperatorHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

func (h *OperatorHandler) Onboard(ctx *fasthttp.RequestCtx) {
	var req transport.OnboardOperatorRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	op, err := h.uc.Onboard(stdCtx, h.principal(ctx), req.UserID, req.DisplayName, req.Email, req.MaxConcurrentChats)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, op)
}

func (h *OperatorHandler) Get(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	if id == "" {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	op, err := h.uc.GetOperator(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, op)
}

func (h *OperatorHandler) ListAvailable(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	operators, err := h.uc.ListAvailable(stdCtx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, operators)
}

func (h *OperatorHandler) Connect(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	var req transport.ConnectRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	connectionID, err := h.uc.Connect(stdCtx, h.principal(ctx), id, req.ConnectionID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"connection_id": connectionID})
}

func (h *OperatorHandler) Disconnect(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.Disconnect(stdCtx, h.principal(ctx), id); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

func (h *OperatorHandler) SetStatus(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	var req transport.SetStatusRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.SetStatus(stdCtx, h.principal(ctx), id, domain.OperatorStatus(req.Status)); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

func (h *OperatorHandler) UpdateCapacity(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	var req transport.UpdateCapacityRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.UpdateCapacity(stdCtx, h.principal(ctx), id, req.MaxConcurrentChats); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

func (h *OperatorHandler) AddSkill(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	var req transport.SkillRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.AddSkill(stdCtx, h.principal(ctx), id, req.Skill); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

func (h *OperatorHandler) RemoveSkill(ctx *fasthttp.RequestCtx) {
	id := h.pathParam(ctx, "id")
	var req transport.SkillRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.RemoveSkill(stdCtx, h.principal(ctx), id, req.Skill); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}
