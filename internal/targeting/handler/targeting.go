package handler

import (
	"context"
	"net/http"

	"bookswap/internal/targeting/auction"
	"bookswap/internal/targeting/service"
	httputil "bookswap/pkg/http"
	"bookswap/pkg/logger"
	"bookswap/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type TargetingHandler struct {
	service  service.TargetingService
	auctions *auction.Coordinator
	log      *logger.Logger
}

func NewTargetingHandler(service service.TargetingService, auctions *auction.Coordinator, log *logger.Logger) *TargetingHandler {
	return &TargetingHandler{
		service:  service,
		auctions: auctions,
		log:      log,
	}
}

func (h *TargetingHandler) RegisterRoutes(router *httprouter.Router) {
	router.DELETE("/api/v1/listings/id/:id", h.CancelListing)
	router.POST("/api/v1/listings/id/:id/target", h.Target)
	router.PUT("/api/v1/listings/id/:id/target", h.Retarget)
	router.DELETE("/api/v1/listings/id/:id/target", h.RemoveTarget)
	router.GET("/api/v1/listings/id/:id/eligibility/:targetId", h.CanTarget)
	router.GET("/api/v1/listings/id/:id/proposals", h.ListProposals)
	router.GET("/api/v1/listings/id/:id/auction/proposals", h.AuctionProposals)
	router.POST("/api/v1/listings/id/:id/auction/proposals/:edgeId/accept", h.AuctionAccept)
	router.PATCH("/api/v1/listings/id/:id/auction", h.ExtendDeadline)

	router.GET("/api/v1/proposals/id/:id", h.GetProposal)
	router.POST("/api/v1/proposals/id/:id/accept", h.Accept)
	router.POST("/api/v1/proposals/id/:id/reject", h.Reject)
	router.POST("/api/v1/proposals/id/:id/withdraw", h.Withdraw)
	router.POST("/api/v1/proposals/id/:id/complete", h.Complete)
}

func (h *TargetingHandler) Target(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.propose(w, r, ps, "Target", h.service.Target)
}

func (h *TargetingHandler) Retarget(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.propose(w, r, ps, "Retarget", h.service.Retarget)
}

func (h *TargetingHandler) propose(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	op func(ctx context.Context, req *model.TargetRequest) (*model.TargetingEdge, error),
) {
	requesterID, err := httputil.RequesterID(r)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	var req model.TargetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, name, err)
		return
	}
	req.SourceListingID = ps.ByName("id")
	req.RequesterID = requesterID

	edge, err := op(r.Context(), &req)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteCreated(w, edge); err != nil {
		h.log.Error("failed to write created response", "handler", name, "operation", "WriteCreated", "error", err)
	}
}

func (h *TargetingHandler) RemoveTarget(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requesterID, err := httputil.RequesterID(r)
	if err != nil {
		h.writeError(w, "RemoveTarget", err)
		return
	}

	cancelled, err := h.service.RemoveTarget(r.Context(), ps.ByName("id"), requesterID)
	if err != nil {
		h.writeError(w, "RemoveTarget", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{"cancelled": cancelled}); err != nil {
		h.log.Error("failed to write success response", "handler", "RemoveTarget", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TargetingHandler) CanTarget(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	eligibility, err := h.service.CanTarget(r.Context(), ps.ByName("id"), ps.ByName("targetId"))
	if err != nil {
		h.writeError(w, "CanTarget", err)
		return
	}

	if err := httputil.WriteSuccess(w, eligibility); err != nil {
		h.log.Error("failed to write success response", "handler", "CanTarget", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TargetingHandler) CancelListing(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requesterID, err := httputil.RequesterID(r)
	if err != nil {
		h.writeError(w, "CancelListing", err)
		return
	}

	listing, err := h.service.CancelListing(r.Context(), ps.ByName("id"), requesterID)
	if err != nil {
		h.writeError(w, "CancelListing", err)
		return
	}

	if err := httputil.WriteSuccess(w, listing); err != nil {
		h.log.Error("failed to write success response", "handler", "CancelListing", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TargetingHandler) ListProposals(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListProposals", err)
		return
	}
	dir := model.Direction(r.URL.Query().Get("direction"))

	edges, total, err := h.service.ListEdges(r.Context(), ps.ByName("id"), dir, limit, offset)
	if err != nil {
		h.writeError(w, "ListProposals", err)
		return
	}

	if err := httputil.WritePaginated(w, edges, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListProposals", "operation", "WritePaginated", "error", err)
	}
}

func (h *TargetingHandler) AuctionProposals(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	edges, err := h.auctions.Incoming(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "AuctionProposals", err)
		return
	}

	if err := httputil.WriteSuccess(w, edges); err != nil {
		h.log.Error("failed to write success response", "handler", "AuctionProposals", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TargetingHandler) AuctionAccept(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requesterID, err := httputil.RequesterID(r)
	if err != nil {
		h.writeError(w, "AuctionAccept", err)
		return
	}

	result, err := h.auctions.Accept(r.Context(), ps.ByName("id"), ps.ByName("edgeId"), requesterID)
	if err != nil {
		h.writeError(w, "AuctionAccept", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "AuctionAccept", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TargetingHandler) ExtendDeadline(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requesterID, err := httputil.RequesterID(r)
	if err != nil {
		h.writeError(w, "ExtendDeadline", err)
		return
	}

	var req model.ExtendDeadlineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "ExtendDeadline", err)
		return
	}

	listing, err := h.auctions.ExtendDeadline(r.Context(), ps.ByName("id"), requesterID, req.AuctionDeadline)
	if err != nil {
		h.writeError(w, "ExtendDeadline", err)
		return
	}

	if err := httputil.WriteSuccess(w, listing); err != nil {
		h.log.Error("failed to write success response", "handler", "ExtendDeadline", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TargetingHandler) GetProposal(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	edge, err := h.service.GetEdge(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetProposal", err)
		return
	}

	if err := httputil.WriteSuccess(w, edge); err != nil {
		h.log.Error("failed to write success response", "handler", "GetProposal", "operation", "WriteSuccess", "error", err)
	}
}

func (h *TargetingHandler) Accept(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.commit(w, r, ps, "Accept", h.service.Accept)
}

func (h *TargetingHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.commit(w, r, ps, "Complete", h.service.Complete)
}

func (h *TargetingHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.resolve(w, r, ps, "Reject", h.service.Reject)
}

func (h *TargetingHandler) Withdraw(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.resolve(w, r, ps, "Withdraw", h.service.Withdraw)
}

func (h *TargetingHandler) commit(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	op func(ctx context.Context, edgeID, requesterID string) (*model.CommitResult, error),
) {
	requesterID, err := httputil.RequesterID(r)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	result, err := op(r.Context(), ps.ByName("id"), requesterID)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *TargetingHandler) resolve(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	op func(ctx context.Context, edgeID, requesterID string) (*model.TargetingEdge, error),
) {
	requesterID, err := httputil.RequesterID(r)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	edge, err := op(r.Context(), ps.ByName("id"), requesterID)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, edge); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *TargetingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}
